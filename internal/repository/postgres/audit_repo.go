package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xela07ax/crmflow-prototype/internal/audit"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) *AuditRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице change_log
	numFields := 12
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12)

		detail, _ := json.Marshal(e.Detail)

		vals = append(vals,
			e.ID, e.TraceID, e.WorkspaceID, e.ActorID,
			e.EntityType, e.EntityID, e.Action,
			detail, e.Status, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO change_log (id, trace_id, workspace_id, actor_id, entity_type, entity_id, action, detail, status, error, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchChanges возвращает историю изменений workspace с опциональными фильтрами.
func (r *AuditRepo) FetchChanges(ctx context.Context, workspaceID, entityType, entityID string) ([]audit.ChangeEvent, error) {
	query := `
		SELECT id, trace_id, workspace_id, actor_id, entity_type, entity_id, action, detail, status, error, duration_ms, timestamp
		FROM change_log
		WHERE workspace_id = $1`

	args := []interface{}{workspaceID}
	if entityType != "" {
		args = append(args, entityType)
		query += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if entityID != "" {
		args = append(args, entityID)
		query += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}
	query += " ORDER BY timestamp DESC LIMIT 200"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query change log: %w", err)
	}
	defer rows.Close()

	results := make([]audit.ChangeEvent, 0)
	for rows.Next() {
		var e audit.ChangeEvent
		var detail []byte

		err := rows.Scan(
			&e.ID, &e.TraceID, &e.WorkspaceID, &e.ActorID,
			&e.EntityType, &e.EntityID, &e.Action,
			&detail, &e.Status, &e.Error, &e.DurationMs, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan change event: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &e.Detail)
		}
		results = append(results, e)
	}

	return results, rows.Err()
}
