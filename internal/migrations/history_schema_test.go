package migrations

import (
	"strings"
	"testing"
)

func TestHistoryMigrationContainsRequiredTablesAndIndexes(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_query_history.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE query_history",
		"session_id TEXT NOT NULL",
		"sql_text TEXT NOT NULL",
		"row_count INTEGER NOT NULL",
		"duration_ms BIGINT NOT NULL",
		"CREATE INDEX idx_query_history_session_created",
		"CREATE INDEX idx_query_history_dataset_created_desc",
	}

	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}

	down, err := embeddedFS.ReadFile("sql/000001_query_history.down.sql")
	if err != nil {
		t.Fatalf("ReadFile(down) error = %v", err)
	}
	if !strings.Contains(string(down), "DROP TABLE IF EXISTS query_history") {
		t.Fatalf("down migration = %q", string(down))
	}
}
