// Package schema builds the textual schema snapshot of a warehouse dataset
// that is embedded in query prompts.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/querychat/internal/observability"
	"github.com/duckmesh/querychat/internal/warehouse"
)

const unavailableLine = "  (schema unavailable)"

type Table struct {
	Name    string             `json:"name"`
	Columns []warehouse.Column `json:"columns"`
}

// SchemaFetchError is a per-table failure. It never aborts a load.
type SchemaFetchError struct {
	Table string
	Err   error
}

func (e *SchemaFetchError) Error() string {
	return fmt.Sprintf("fetch schema of table %q: %v", e.Table, e.Err)
}

func (e *SchemaFetchError) Unwrap() error {
	return e.Err
}

// Snapshot is the schema of one dataset at selection time. Tables keep the
// warehouse listing order.
type Snapshot struct {
	Dataset  string
	Tables   []Table
	Failures []*SchemaFetchError
}

func (s Snapshot) failed(table string) bool {
	for _, failure := range s.Failures {
		if failure.Table == table {
			return true
		}
	}
	return false
}

// Text renders one section per listed table:
//
//	Schema for table <name>:
//	  <col> (<TYPE>)
//
// Tables whose columns could not be fetched get a single
// "(schema unavailable)" line.
func (s Snapshot) Text() string {
	var b strings.Builder
	for _, table := range s.Tables {
		fmt.Fprintf(&b, "Schema for table %s:\n", table.Name)
		if s.failed(table.Name) {
			b.WriteString(unavailableLine)
			b.WriteString("\n")
		}
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "  %s (%s)\n", column.Name, column.Type)
		}
		b.WriteString("\n")
	}
	return b.String()
}

type Loader struct {
	Warehouse warehouse.Warehouse
	Logger    *slog.Logger
}

func NewLoader(w warehouse.Warehouse, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Loader{Warehouse: w, Logger: logger}
}

// Load lists the dataset and fetches every table's columns. Only a listing
// failure is returned; per-table failures land in Snapshot.Failures.
func (l *Loader) Load(ctx context.Context, dataset string) (Snapshot, error) {
	if l.Warehouse == nil {
		return Snapshot{}, fmt.Errorf("warehouse is required")
	}
	logger := observability.LoggerWithTrace(ctx, l.Logger)

	tables, err := l.Warehouse.ListTables(ctx, dataset)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list tables of dataset %q: %w", dataset, err)
	}

	snapshot := Snapshot{Dataset: dataset, Tables: make([]Table, 0, len(tables))}
	for _, name := range tables {
		columns, err := l.Warehouse.TableSchema(ctx, dataset, name)
		if err != nil {
			snapshot.Failures = append(snapshot.Failures, &SchemaFetchError{Table: name, Err: err})
			logger.Warn("table schema unavailable", slog.String("dataset", dataset), slog.String("table", name), slog.Any("error", err))
			snapshot.Tables = append(snapshot.Tables, Table{Name: name})
			continue
		}
		snapshot.Tables = append(snapshot.Tables, Table{Name: name, Columns: columns})
	}
	observability.IncrementSchemaTableFailures(len(snapshot.Failures))
	logger.Debug("schema snapshot loaded", slog.String("dataset", dataset), slog.Int("tables", len(snapshot.Tables)), slog.Int("failures", len(snapshot.Failures)))
	return snapshot, nil
}
