package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/duckmesh/querychat/internal/schema"
	"github.com/duckmesh/querychat/internal/warehouse"
)

func TestTableLimitsDisplayedRows(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, 60, 2)
	r.Table(warehouse.Result{
		Columns:   []string{"id"},
		Rows:      [][]any{{int64(1)}, {int64(2)}, {int64(3)}},
		Truncated: true,
	})
	text := out.String()
	if strings.Contains(text, "│ 3 ") {
		t.Fatalf("row 3 rendered:\n%s", text)
	}
	if !strings.Contains(text, "1 more rows not shown") {
		t.Fatalf("missing hidden rows note:\n%s", text)
	}
	if !strings.Contains(text, "truncated by the row limit") {
		t.Fatalf("missing truncation note:\n%s", text)
	}
}

func TestSchemaReportsFailures(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, 0, 0)
	r.Schema(schema.Snapshot{
		Dataset:  "sales",
		Tables:   []schema.Table{{Name: "users"}, {Name: "broken"}},
		Failures: []*schema.SchemaFetchError{{Table: "broken", Err: errors.New("denied")}},
	})
	text := out.String()
	if !strings.Contains(text, "Dataset sales") || !strings.Contains(text, "1 table schemas could not be loaded") {
		t.Fatalf("output:\n%s", text)
	}
}

func TestErrorWithoutStage(t *testing.T) {
	var out bytes.Buffer
	NewRenderer(&out, 0, 0).Error(errors.New("boom"))
	if !strings.Contains(out.String(), "Error: boom") {
		t.Fatalf("output = %q", out.String())
	}
}
