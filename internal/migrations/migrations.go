// Package migrations owns the Postgres schema of the query history. Scripts
// are embedded as sql/<version>_<name>.<up|down>.sql and tracked in
// querychat_schema_migrations.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = "querychat_schema_migrations"

var scriptNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

type script struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// Status is the state of one known migration.
type Status struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range scripts {
		if steps > 0 && count == steps {
			break
		}
		if _, done := applied[s.Version]; done {
			continue
		}
		insert := `INSERT INTO ` + versionTable + ` (version) VALUES ($1)`
		if err := runInTx(ctx, db, s.Up, insert, s.Version); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", s.Version, s.Name, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back the most recently applied migrations. steps <= 0 rolls
// back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	scripts, applied, err := r.prepare(ctx, db)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]script, len(scripts))
	for _, s := range scripts {
		byVersion[s.Version] = s
	}

	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	slices.Reverse(versions)

	count := 0
	for _, version := range versions {
		if count == steps {
			break
		}
		s, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied migration %d has no script", version)
		}
		remove := `DELETE FROM ` + versionTable + ` WHERE version = $1`
		if err := runInTx(ctx, db, s.Down, remove, s.Version); err != nil {
			return count, fmt.Errorf("roll back migration %d (%s): %w", s.Version, s.Name, err)
		}
		count++
	}
	return count, nil
}

// Status lists every embedded migration with its applied state.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	scripts, applied, err := r.prepare(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(scripts))
	for _, s := range scripts {
		appliedAt, ok := applied[s.Version]
		out = append(out, Status{Version: s.Version, Name: s.Name, Applied: ok, AppliedAt: appliedAt})
	}
	return out, nil
}

// Pending counts migrations that Up would apply.
func (r *Runner) Pending(ctx context.Context, db *sql.DB) (int, error) {
	statuses, err := r.Status(ctx, db)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, status := range statuses {
		if !status.Applied {
			pending++
		}
	}
	return pending, nil
}

func (r *Runner) prepare(ctx context.Context, db *sql.DB) ([]script, map[int64]time.Time, error) {
	scripts, err := readScripts(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	create := `CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", versionTable, err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, nil, err
	}
	return scripts, applied, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int64]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM `+versionTable)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]time.Time{}
	for rows.Next() {
		var version int64
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return applied, nil
}

// runInTx runs a migration script and its bookkeeping statement atomically.
func runInTx(ctx context.Context, db *sql.DB, body, bookkeeping string, version int64) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("script is empty")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

func readScripts(fsys fs.FS) ([]script, error) {
	names, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration scripts: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, name := range names {
		match := scriptNamePattern.FindStringSubmatch(path.Base(name))
		if match == nil {
			continue
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", name, err)
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", name, err)
		}

		s := byVersion[version]
		if s == nil {
			s = &script{Version: version, Name: match[2]}
			byVersion[version] = s
		}
		if match[3] == "up" {
			s.Up = string(body)
		} else {
			s.Down = string(body)
		}
	}

	scripts := make([]script, 0, len(byVersion))
	for _, s := range byVersion {
		if strings.TrimSpace(s.Up) == "" {
			return nil, fmt.Errorf("migration %d missing up script", s.Version)
		}
		if strings.TrimSpace(s.Down) == "" {
			return nil, fmt.Errorf("migration %d missing down script", s.Version)
		}
		scripts = append(scripts, *s)
	}
	slices.SortFunc(scripts, func(a, b script) int { return cmp.Compare(a.Version, b.Version) })
	return scripts, nil
}
