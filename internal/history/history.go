// Package history records completed chat turns for auditing. Entries are
// never fed back into a session.
package history

import (
	"context"
	"time"
)

type Entry struct {
	HistoryID  int64     `json:"history_id"`
	SessionID  string    `json:"session_id"`
	Dataset    string    `json:"dataset"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql"`
	RowCount   int       `json:"row_count"`
	Truncated  bool      `json:"truncated"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListFilter struct {
	SessionID string
	Dataset   string
	Limit     int
}

type Recorder interface {
	Record(ctx context.Context, entry Entry) (Entry, error)
}

type Repository interface {
	Recorder
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	HealthCheck(ctx context.Context) error
}
