//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Each run gets its own schema through search_path, so the test can share a
// database with other suites.
func TestRunnerRoundTripAgainstPostgres(t *testing.T) {
	baseDSN := strings.TrimSpace(os.Getenv("QUERYCHAT_TEST_HISTORY_DSN"))
	if baseDSN == "" {
		t.Skip("QUERYCHAT_TEST_HISTORY_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := fmt.Sprintf("querychat_it_%d", time.Now().UnixNano())
	db := openInSchema(ctx, t, baseDSN, schema)

	runner := NewRunner()
	if pending, err := runner.Pending(ctx, db); err != nil || pending == 0 {
		t.Fatalf("Pending() before up = %d, %v", pending, err)
	}
	if _, err := runner.Up(ctx, db, 0); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if !tableInSchema(ctx, t, db, schema, "query_history") {
		t.Fatal("query_history missing after Up()")
	}
	statuses, err := runner.Status(ctx, db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	for _, status := range statuses {
		if !status.Applied || status.AppliedAt.IsZero() {
			t.Fatalf("status after up = %+v", status)
		}
	}

	if _, err := runner.Down(ctx, db, len(statuses)); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if tableInSchema(ctx, t, db, schema, "query_history") {
		t.Fatal("query_history still present after Down()")
	}
}

func openInSchema(ctx context.Context, t *testing.T, baseDSN, schema string) *sql.DB {
	t.Helper()
	admin, err := sql.Open("pgx", baseDSN)
	if err != nil {
		t.Fatalf("open admin connection: %v", err)
	}
	t.Cleanup(func() { _ = admin.Close() })
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA `+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := admin.Exec(`DROP SCHEMA ` + schema + ` CASCADE`); err != nil {
			t.Errorf("drop schema %s: %v", schema, err)
		}
	})

	scoped, err := url.Parse(baseDSN)
	if err != nil {
		t.Fatalf("QUERYCHAT_TEST_HISTORY_DSN must be a URL: %v", err)
	}
	query := scoped.Query()
	query.Set("search_path", schema)
	scoped.RawQuery = query.Encode()

	db, err := sql.Open("pgx", scoped.String())
	if err != nil {
		t.Fatalf("open scoped connection: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableInSchema(ctx context.Context, t *testing.T, db *sql.DB, schema, table string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = $1 AND tablename = $2)`,
		schema, table,
	).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s.%s: %v", schema, table, err)
	}
	return exists
}
