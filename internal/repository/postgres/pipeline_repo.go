package postgres

/*
Файл pipeline_repo.go отвечает за воронки продаж и сделки (Opportunities).
Перемещение сделок идет по тому же протоколу expected_updated_at, что и
секции агента: условный UPDATE + RETURNING без предварительного SELECT.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

func (r *AgentRepo) ListPipelines(ctx context.Context, workspaceID string) ([]*domain.Pipeline, error) {
	query := `SELECT id, workspace_id, name, stages, created_at, updated_at
	          FROM pipelines WHERE workspace_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query pipelines: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Pipeline, 0)
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (r *AgentRepo) GetPipeline(ctx context.Context, workspaceID, id string) (*domain.Pipeline, error) {
	query := `SELECT id, workspace_id, name, stages, created_at, updated_at
	          FROM pipelines WHERE id = $1 AND workspace_id = $2`

	p, err := scanPipeline(r.pool.QueryRow(ctx, query, id, workspaceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch pipeline: %w", err)
	}
	return p, nil
}

func scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	var stages []byte
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &stages, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stages, &p.Stages); err != nil {
		return nil, fmt.Errorf("postgres: corrupt stages payload: %w", err)
	}
	return &p, nil
}

func (r *AgentRepo) CreatePipeline(ctx context.Context, p *domain.Pipeline) error {
	stages, err := json.Marshal(p.Stages)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, workspace_id, name, stages)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`

	err = r.pool.QueryRow(ctx, query, p.WorkspaceID, p.Name, stages).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create pipeline: %w", err)
	}
	return nil
}

const opportunityColumns = `id, workspace_id, pipeline_id, stage_id, title, amount, contact_id, updated_by, created_at, updated_at`

func (r *AgentRepo) ListOpportunities(ctx context.Context, workspaceID, pipelineID string) ([]*domain.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + `
	          FROM opportunities WHERE workspace_id = $1 AND pipeline_id = $2
	          ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, workspaceID, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query opportunities: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Opportunity, 0)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, o)
	}
	return results, rows.Err()
}

func scanOpportunity(row pgx.Row) (*domain.Opportunity, error) {
	var o domain.Opportunity
	err := row.Scan(
		&o.ID, &o.WorkspaceID, &o.PipelineID, &o.StageID,
		&o.Title, &o.Amount, &o.ContactID,
		&o.UpdatedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *AgentRepo) CreateOpportunity(ctx context.Context, o *domain.Opportunity) error {
	query := `
		INSERT INTO opportunities (id, workspace_id, pipeline_id, stage_id, title, amount, contact_id, updated_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		o.WorkspaceID, o.PipelineID, o.StageID, o.Title, o.Amount, o.ContactID, o.UpdatedBy,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create opportunity: %w", err)
	}
	return nil
}

// UpdateOpportunity двигает сделку по стадиям / правит сумму с проверкой токена.
// Ноль строк — тот же разбор 404/409, что и у агентов.
func (r *AgentRepo) UpdateOpportunity(ctx context.Context, workspaceID, id, stageID, title string, amount float64, expected time.Time, editorID string) (time.Time, error) {
	query := `
		UPDATE opportunities
		SET stage_id = $1, title = $2, amount = $3, updated_by = $4, updated_at = NOW()
		WHERE id = $5 AND workspace_id = $6 AND updated_at = $7
		RETURNING updated_at`

	var newUpdatedAt time.Time
	err := r.pool.QueryRow(ctx, query, stageID, title, amount, editorID, id, workspaceID, expected).Scan(&newUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, r.opportunityStaleOrMissing(ctx, workspaceID, id)
		}
		return time.Time{}, fmt.Errorf("postgres: failed to update opportunity: %w", err)
	}
	return newUpdatedAt, nil
}

func (r *AgentRepo) opportunityStaleOrMissing(ctx context.Context, workspaceID, id string) error {
	var updatedBy string
	var updatedAt time.Time

	err := r.pool.QueryRow(ctx,
		`SELECT updated_by, updated_at FROM opportunities WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID,
	).Scan(&updatedBy, &updatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: failed to resolve conflict details: %w", err)
	}
	return &domain.ConflictError{UpdatedBy: updatedBy, UpdatedAt: updatedAt}
}
