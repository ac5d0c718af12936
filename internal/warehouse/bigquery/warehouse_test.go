package bigquery

import (
	"context"
	"errors"
	"math"
	"testing"

	"cloud.google.com/go/bigquery"

	"github.com/duckmesh/querychat/internal/warehouse"
)

func TestListTablesSortsNames(t *testing.T) {
	fake := &fakeClient{tables: map[string][]string{"sales": {"users", "orders"}}}
	tables, err := NewWithClient(fake, 0).ListTables(context.Background(), "sales")
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 2 || tables[0] != "orders" || tables[1] != "users" {
		t.Fatalf("tables = %#v", tables)
	}
}

func TestListTablesWrapsClientError(t *testing.T) {
	cause := errors.New("permission denied")
	fake := &fakeClient{listErr: cause}
	_, err := NewWithClient(fake, 0).ListTables(context.Background(), "sales")
	if !errors.Is(err, cause) {
		t.Fatalf("ListTables() error = %v", err)
	}
}

func TestTableSchemaMapsFieldTypes(t *testing.T) {
	fake := &fakeClient{schemas: map[string]bigquery.Schema{
		"sales.users": {
			{Name: "id", Type: bigquery.IntegerFieldType},
			{Name: "email", Type: bigquery.StringFieldType},
			{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
			{Name: "address", Type: bigquery.RecordFieldType},
		},
	}}

	columns, err := NewWithClient(fake, 0).TableSchema(context.Background(), "sales", "users")
	if err != nil {
		t.Fatalf("TableSchema() error = %v", err)
	}
	want := []warehouse.Column{
		{Name: "id", Type: "INTEGER"},
		{Name: "email", Type: "STRING"},
		{Name: "tags", Type: "ARRAY<STRING>"},
		{Name: "address", Type: "STRUCT"},
	}
	if len(columns) != len(want) {
		t.Fatalf("columns = %#v", columns)
	}
	for i := range want {
		if columns[i] != want[i] {
			t.Fatalf("columns[%d] = %#v, want %#v", i, columns[i], want[i])
		}
	}
}

func TestQueryScopesToDatasetAndMapsRows(t *testing.T) {
	fake := &fakeClient{result: queryResult{
		Schema: bigquery.Schema{{Name: "id"}, {Name: "email"}},
		Rows:   [][]bigquery.Value{{int64(1), "a@x.com"}, {int64(2), "b@x.com"}},
	}}

	result, err := NewWithClient(fake, 500).Query(context.Background(), warehouse.Request{Dataset: "sales", SQL: "SELECT id, email FROM users"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if fake.lastDataset != "sales" || fake.lastSQL != "SELECT id, email FROM users" || fake.lastMaxRows != 500 {
		t.Fatalf("client saw dataset=%q sql=%q maxRows=%d", fake.lastDataset, fake.lastSQL, fake.lastMaxRows)
	}
	if len(result.Columns) != 2 || result.Columns[1] != "email" {
		t.Fatalf("columns = %#v", result.Columns)
	}
	if len(result.Rows) != 2 || result.Rows[1][1] != "b@x.com" {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestQuerySpellsNonFiniteFloats(t *testing.T) {
	fake := &fakeClient{result: queryResult{
		Schema: bigquery.Schema{{Name: "ratio"}},
		Rows:   [][]bigquery.Value{{math.NaN()}, {math.Inf(-1)}, {0.25}},
	}}

	result, err := NewWithClient(fake, 0).Query(context.Background(), warehouse.Request{Dataset: "sales", SQL: "SELECT ratio FROM t"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Rows[0][0] != "NaN" || result.Rows[1][0] != "-Infinity" || result.Rows[2][0] != 0.25 {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestQueryWrapsFailureAsQueryError(t *testing.T) {
	fake := &fakeClient{queryErr: errors.New("Syntax error: Unexpected keyword")}
	_, err := NewWithClient(fake, 0).Query(context.Background(), warehouse.Request{Dataset: "sales", SQL: "SELEC 1"})
	var queryErr *warehouse.QueryError
	if !errors.As(err, &queryErr) || queryErr.SQL != "SELEC 1" {
		t.Fatalf("Query() error = %v", err)
	}
}

func TestQueryRequiresDatasetAndSQL(t *testing.T) {
	w := NewWithClient(&fakeClient{}, 0)
	if _, err := w.Query(context.Background(), warehouse.Request{Dataset: "", SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected dataset error")
	}
	if _, err := w.Query(context.Background(), warehouse.Request{Dataset: "sales", SQL: ""}); err == nil {
		t.Fatal("expected sql error")
	}
}

type fakeClient struct {
	tables   map[string][]string
	schemas  map[string]bigquery.Schema
	result   queryResult
	listErr  error
	queryErr error

	lastDataset string
	lastSQL     string
	lastMaxRows int
}

func (f *fakeClient) ListTables(_ context.Context, dataset string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.tables[dataset]...), nil
}

func (f *fakeClient) TableSchema(_ context.Context, dataset, table string) (bigquery.Schema, error) {
	schema, ok := f.schemas[dataset+"."+table]
	if !ok {
		return nil, errors.New("not found")
	}
	return schema, nil
}

func (f *fakeClient) Query(_ context.Context, dataset, sql string, maxRows int) (queryResult, error) {
	f.lastDataset = dataset
	f.lastSQL = sql
	f.lastMaxRows = maxRows
	if f.queryErr != nil {
		return queryResult{}, f.queryErr
	}
	return f.result, nil
}

func (f *fakeClient) Close() error {
	return nil
}
