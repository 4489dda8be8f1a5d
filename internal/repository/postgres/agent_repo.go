package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

// NewAgentRepo создает пул соединений по настройкам из конфига.
func NewAgentRepo(ctx context.Context, cfg infra.DatabaseConfig) (*AgentRepo, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return &AgentRepo{pool: pool}, nil
}

// Ping проверяет доступность базы при старте
func (r *AgentRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *AgentRepo) Close() {
	r.pool.Close()
}

// Белый список колонок секций. Имя секции приходит из URL,
// в SQL подставляются только значения из этой мапы.
var sectionColumns = map[domain.Section]string{
	domain.SectionInstructions: "instructions",
	domain.SectionRestrictions: "restrictions",
	domain.SectionMemory:       "memory",
	domain.SectionApproval:     "approval_config",
	domain.SectionTriggers:     "triggers",
}

const agentColumns = `id, workspace_id, name, status, instructions, restrictions,
	memory, approval_config, triggers, updated_by, created_at, updated_at`

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	err := row.Scan(
		&a.ID, &a.WorkspaceID, &a.Name, &a.Status,
		&a.Instructions, &a.Restrictions,
		&a.Memory, &a.ApprovalConfig, &a.Triggers,
		&a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AgentRepo) GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1 AND workspace_id = $2`

	a, err := scanAgent(r.pool.QueryRow(ctx, query, agentID, workspaceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch agent: %w", err)
	}
	return a, nil
}

func (r *AgentRepo) ListAgents(ctx context.Context, workspaceID string) ([]*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE workspace_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query agents: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan agent: %w", err)
		}
		results = append(results, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func (r *AgentRepo) CreateAgent(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO agents (id, workspace_id, name, status, instructions, restrictions, memory, approval_config, triggers, updated_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		a.WorkspaceID, a.Name, a.Status,
		a.Instructions, a.Restrictions, a.Memory, a.ApprovalConfig, a.Triggers,
		a.UpdatedBy,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create agent: %w", err)
	}
	return nil
}

// UpdateSection сохраняет один слайс агента с проверкой токена оптимистичной блокировки.
// Условие updated_at = $expected выполняет сравнение на стороне БД за один проход:
// ноль строк означает либо устаревший токен (409), либо отсутствие агента (404).
func (r *AgentRepo) UpdateSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time, editorID string) (time.Time, error) {
	col, ok := sectionColumns[sec]
	if !ok {
		return time.Time{}, domain.ErrUnknownSection
	}

	// Текстовые секции храним как text, остальные — как jsonb
	var arg interface{} = value
	if sec == domain.SectionInstructions || sec == domain.SectionRestrictions {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return time.Time{}, &domain.ValidationError{Details: []domain.FieldError{
				{Path: string(sec), Message: "must be a JSON string"},
			}}
		}
		arg = s
	}

	query := fmt.Sprintf(`
		UPDATE agents
		SET %s = $1, updated_by = $2, updated_at = NOW()
		WHERE id = $3 AND workspace_id = $4 AND updated_at = $5
		RETURNING updated_at`, col)

	var newUpdatedAt time.Time
	err := r.pool.QueryRow(ctx, query, arg, editorID, agentID, workspaceID, expected).Scan(&newUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, r.staleOrMissing(ctx, workspaceID, agentID)
		}
		return time.Time{}, fmt.Errorf("postgres: failed to update section %s: %w", sec, err)
	}
	return newUpdatedAt, nil
}

// UpdateAgentStatus меняет статус по тому же протоколу expected_updated_at.
func (r *AgentRepo) UpdateAgentStatus(ctx context.Context, workspaceID, agentID string, status domain.AgentStatus, expected time.Time, editorID string) (time.Time, error) {
	query := `
		UPDATE agents
		SET status = $1, updated_by = $2, updated_at = NOW()
		WHERE id = $3 AND workspace_id = $4 AND updated_at = $5
		RETURNING updated_at`

	var newUpdatedAt time.Time
	err := r.pool.QueryRow(ctx, query, status, editorID, agentID, workspaceID, expected).Scan(&newUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, r.staleOrMissing(ctx, workspaceID, agentID)
		}
		return time.Time{}, fmt.Errorf("postgres: failed to update status: %w", err)
	}
	return newUpdatedAt, nil
}

// staleOrMissing различает 404 и 409 после неудачного условного UPDATE.
func (r *AgentRepo) staleOrMissing(ctx context.Context, workspaceID, agentID string) error {
	var updatedBy string
	var updatedAt time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT updated_by, updated_at FROM agents WHERE id = $1 AND workspace_id = $2`,
		agentID, workspaceID,
	).Scan(&updatedBy, &updatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: failed to resolve conflict details: %w", err)
	}

	// Агент на месте, значит токен протух — отдаем метаданные для окна конфликта
	return &domain.ConflictError{UpdatedBy: updatedBy, UpdatedAt: updatedAt}
}

// CountLiveAgents возвращает число live-агентов в workspace (для live-сигналов).
func (r *AgentRepo) CountLiveAgents(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agents WHERE workspace_id = $1 AND status = 'live'`,
		workspaceID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count live agents: %w", err)
	}
	return n, nil
}

// GetLiveWorkspaces возвращает ID всех workspace'ов с live-агентами.
// Используется для инициализации L1 (RAM) кэша LiveStateManager при старте воркера.
func (r *AgentRepo) GetLiveWorkspaces(ctx context.Context) ([]string, error) {
	// Выбираем только ID, чтобы минимизировать трафик между БД и приложением
	query := `SELECT DISTINCT workspace_id FROM agents WHERE status = 'live'`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch live workspaces: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan workspace id error: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}
