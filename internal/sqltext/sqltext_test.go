package sqltext

import (
	"errors"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: " ```sql SELECT 1``` ", want: "SELECT 1"},
		{raw: "SELECT 1", want: "SELECT 1"},
		{raw: "```sql\nSELECT id\nFROM users\n```\n", want: "SELECT id\nFROM users"},
		{raw: "```\nSELECT 2\n```", want: "SELECT 2"},
		{raw: "SELECT '```' AS fence", want: "SELECT '' AS fence"},
		{raw: "   ", want: ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.raw); got != tt.want {
			t.Fatalf("Clean(%q) = %q, want %q", tt.raw, got, tt.want)
		}
		if again := Clean(Clean(tt.raw)); again != Clean(tt.raw) {
			t.Fatalf("Clean is not idempotent for %q: %q", tt.raw, again)
		}
	}
}

func TestReadOnlyAccepts(t *testing.T) {
	tests := []struct {
		dialect Dialect
		sql     string
	}{
		{"", "SELECT 1"},
		{"", "select count(*) from users;"},
		{"", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent"},
		{"", "-- users\nSELECT * FROM users"},
		{"", "/* totals */ SELECT SUM(amount) FROM orders"},
		{"", "SELECT * FROM events WHERE action = 'delete; drop table x'"},
		{"", "SELECT created_at, updated_at FROM users"},
		{"", "SELECT load, copy FROM servers"},
		{"", "SELECT count(load), max(merge) AS m FROM servers WHERE call > 1"},
		{"", "SELECT 'it''s; fine' AS quote"},
		{BigQuery, "SELECT `update` FROM audit"},
		{BigQuery, `SELECT 'a\'; DROP TABLE t; --' AS s`},
		{BigQuery, "SELECT 1 FROM t # ; DROP TABLE t"},
		{BigQuery, "SELECT '''it's; here''' AS s"},
		{DuckDB, `SELECT "update" FROM audit`},
		{DuckDB, "SELECT $$; DROP TABLE t;$$ AS body"},
		{DuckDB, "SELECT $tag$it's$tag$ AS body"},
		{DuckDB, `SELECT E'a\'; DROP' AS s`},
		{DuckDB, "SELECT * FROM t WHERE id = $1"},
	}
	for _, tt := range tests {
		if err := ReadOnly(tt.dialect, tt.sql); err != nil {
			t.Fatalf("ReadOnly(%q, %q) error = %v", tt.dialect, tt.sql, err)
		}
	}
}

func TestReadOnlyRejects(t *testing.T) {
	tests := []struct {
		dialect Dialect
		sql     string
	}{
		{"", ""},
		{"", "-- only a comment"},
		{"", "DELETE FROM users"},
		{"", "DROP TABLE users"},
		{"", "SELECT 1; DROP TABLE users"},
		{"", "SELECT 1; SELECT 2"},
		{"", "WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x"},
		{"", "WITH x AS (DELETE FROM t RETURNING *) SELECT * FROM x"},
		{"", "CREATE TABLE t AS SELECT 1"},
		{"", "SELECT 'unterminated"},
		{"", "SELECT 1 /* open comment"},
		{"", `SELECT 'a\'; COPY (SELECT 1) TO '/tmp/x.csv'; --'`},
		{"", "SELECT 1 FROM t # ; DROP TABLE t"},
		{DuckDB, `SELECT 'a\'; COPY (SELECT 1) TO '/tmp/x.csv'; --'`},
		{DuckDB, "SELECT 1 FROM t # ; DROP TABLE t"},
		{DuckDB, `SELECT "a\"; DELETE FROM t; --"`},
		{DuckDB, "SELECT 1 `x; DROP TABLE t; --`"},
		{DuckDB, "SELECT $$'$$; DROP TABLE t; --'"},
		{DuckDB, "SELECT $a$ never closed"},
		{BigQuery, "SELECT '''it's''' ; DROP TABLE t"},
		{BigQuery, "SELECT 1 -- note\n; DELETE FROM t"},
	}
	for _, tt := range tests {
		err := ReadOnly(tt.dialect, tt.sql)
		if !errors.Is(err, ErrNotReadOnly) {
			t.Fatalf("ReadOnly(%q, %q) error = %v, want ErrNotReadOnly", tt.dialect, tt.sql, err)
		}
	}
}
