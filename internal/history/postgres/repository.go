package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/duckmesh/querychat/internal/history"
)

const defaultListLimit = 100

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, entry history.Entry) (history.Entry, error) {
	if strings.TrimSpace(entry.SessionID) == "" {
		return history.Entry{}, fmt.Errorf("session id is required")
	}

	query := `
INSERT INTO query_history (session_id, dataset, question, sql_text, row_count, truncated, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING history_id, created_at`
	if err := r.db.QueryRowContext(ctx, query,
		entry.SessionID,
		entry.Dataset,
		entry.Question,
		entry.SQL,
		entry.RowCount,
		entry.Truncated,
		entry.DurationMS,
	).Scan(&entry.HistoryID, &entry.CreatedAt); err != nil {
		return history.Entry{}, fmt.Errorf("record query history: %w", err)
	}
	return entry, nil
}

// List returns the newest entries first.
func (r *Repository) List(ctx context.Context, filter history.ListFilter) ([]history.Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	conditions := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if filter.Dataset != "" {
		args = append(args, filter.Dataset)
		conditions = append(conditions, fmt.Sprintf("dataset = $%d", len(args)))
	}
	args = append(args, limit)

	query := `
SELECT history_id, session_id, dataset, question, sql_text, row_count, truncated, duration_ms, created_at
FROM query_history`
	if len(conditions) > 0 {
		query += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf("\nORDER BY created_at DESC, history_id DESC\nLIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]history.Entry, 0)
	for rows.Next() {
		var entry history.Entry
		if err := rows.Scan(
			&entry.HistoryID,
			&entry.SessionID,
			&entry.Dataset,
			&entry.Question,
			&entry.SQL,
			&entry.RowCount,
			&entry.Truncated,
			&entry.DurationMS,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}
