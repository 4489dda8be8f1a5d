package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

const templateColumns = `id, workspace_id, name, type, purpose, tone, subject, html, created_by, created_at, updated_at`

func (r *AgentRepo) CreateTemplate(ctx context.Context, t *domain.Template) error {
	query := `
		INSERT INTO templates (id, workspace_id, name, type, purpose, tone, subject, html, created_by)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		t.WorkspaceID, t.Name, t.Type, t.Purpose, t.Tone, t.Subject, t.HTML, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create template: %w", err)
	}
	return nil
}

func (r *AgentRepo) GetTemplate(ctx context.Context, workspaceID, id string) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1 AND workspace_id = $2`

	t, err := scanTemplate(r.pool.QueryRow(ctx, query, id, workspaceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch template: %w", err)
	}
	return t, nil
}

func (r *AgentRepo) ListTemplates(ctx context.Context, workspaceID string) ([]*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT 100`

	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query templates: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan template: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

func scanTemplate(row pgx.Row) (*domain.Template, error) {
	var t domain.Template
	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.Name, &t.Type, &t.Purpose, &t.Tone,
		&t.Subject, &t.HTML, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
