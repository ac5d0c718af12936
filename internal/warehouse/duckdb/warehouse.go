package duckdb

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/querychat/internal/storage"
	"github.com/duckmesh/querychat/internal/warehouse"
)

// Warehouse serves datasets laid out in an object store as
// <dataset>/<table>/*.parquet through an in-process DuckDB.
type Warehouse struct {
	Store   storage.ObjectStore
	MaxRows int
}

func New(store storage.ObjectStore, maxRows int) *Warehouse {
	return &Warehouse{Store: store, MaxRows: maxRows}
}

func (w *Warehouse) ListTables(ctx context.Context, dataset string) ([]string, error) {
	files, err := w.datasetFiles(ctx, dataset)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(files))
	for table := range files {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables, nil
}

func (w *Warehouse) TableSchema(ctx context.Context, dataset, table string) ([]warehouse.Column, error) {
	if w.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix, err := storage.TablePrefix(dataset, table)
	if err != nil {
		return nil, err
	}
	objects, err := w.Store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list table files: %w", err)
	}
	for _, object := range objects {
		if _, _, ok := storage.ParseTableFilePath(object.Key); !ok {
			continue
		}
		data, err := w.readObject(ctx, object.Key)
		if err != nil {
			return nil, err
		}
		columns, err := parquetColumns(data)
		if err != nil {
			return nil, fmt.Errorf("read schema of %q: %w", object.Key, err)
		}
		return columns, nil
	}
	return nil, fmt.Errorf("table %q not found in dataset %q", table, dataset)
}

func (w *Warehouse) Query(ctx context.Context, request warehouse.Request) (warehouse.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return warehouse.Result{}, fmt.Errorf("sql is required")
	}
	files, err := w.datasetFiles(ctx, request.Dataset)
	if err != nil {
		return warehouse.Result{}, err
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "querychat-query-")
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	groupedPaths := map[string][]string{}
	for table, keys := range files {
		for index, key := range keys {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(table), index))
			if err := download(ctx, w.Store, key, localPath); err != nil {
				return warehouse.Result{}, err
			}
			groupedPaths[table] = append(groupedPaths[table], localPath)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return warehouse.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for table, localPaths := range groupedPaths {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return warehouse.Result{}, fmt.Errorf("create view for table %q: %w", table, err)
		}
	}

	rows, err := db.QueryContext(ctx, request.SQL)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: request.SQL, Err: err}
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: request.SQL, Err: fmt.Errorf("query columns: %w", err)}
	}

	result := warehouse.Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if w.MaxRows > 0 && len(result.Rows) >= w.MaxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return warehouse.Result{}, &warehouse.QueryError{SQL: request.SQL, Err: fmt.Errorf("scan row: %w", err)}
		}
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: request.SQL, Err: fmt.Errorf("iterate rows: %w", err)}
	}
	result.Duration = time.Since(start)
	return result, nil
}

// datasetFiles maps table name to the object keys of its parquet files.
func (w *Warehouse) datasetFiles(ctx context.Context, dataset string) (map[string][]string, error) {
	if w.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix, err := storage.DatasetPrefix(dataset)
	if err != nil {
		return nil, err
	}
	objects, err := w.Store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list dataset %q: %w", dataset, err)
	}
	files := map[string][]string{}
	for _, object := range objects {
		objectDataset, table, ok := storage.ParseTableFilePath(object.Key)
		if !ok || objectDataset != dataset {
			continue
		}
		files[table] = append(files[table], object.Key)
	}
	return files, nil
}

func (w *Warehouse) readObject(ctx context.Context, key string) ([]byte, error) {
	reader, err := w.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return buf.Bytes(), nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = warehouse.FiniteValue(typed)
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
