package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

// CreateSyncRun фиксирует новый запуск синхронизации в статусе PENDING.
func (r *AgentRepo) CreateSyncRun(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, workspace_id, status, requested_by)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, started_at`

	err := r.pool.QueryRow(ctx, query, run.WorkspaceID, run.Status, run.RequestedBy).
		Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create sync run: %w", err)
	}
	return nil
}

// MarkSyncRun переводит запуск в новый статус. Терминальные статусы
// проставляют finished_at, чтобы консоль могла показать длительность.
func (r *AgentRepo) MarkSyncRun(ctx context.Context, id string, status domain.SyncStatus, detail string) error {
	query := `
		UPDATE sync_runs
		SET status = $1,
		    detail = $2,
		    finished_at = CASE WHEN $1 IN ('SUCCESS', 'FAILED', 'SKIPPED') THEN NOW() ELSE finished_at END
		WHERE id = $3`

	ct, err := r.pool.Exec(ctx, query, status, detail, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark sync run: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetLastSyncRun возвращает последний запуск по workspace для статусной плашки в UI.
func (r *AgentRepo) GetLastSyncRun(ctx context.Context, workspaceID string) (*domain.SyncRun, error) {
	query := `
		SELECT id, workspace_id, status, COALESCE(detail, ''), requested_by, started_at, finished_at
		FROM sync_runs
		WHERE workspace_id = $1
		ORDER BY started_at DESC
		LIMIT 1`

	var run domain.SyncRun
	err := r.pool.QueryRow(ctx, query, workspaceID).Scan(
		&run.ID, &run.WorkspaceID, &run.Status, &run.Detail,
		&run.RequestedBy, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch sync run: %w", err)
	}
	return &run, nil
}
