package warehouse

import (
	"context"
	"fmt"
	"math"
	"time"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Request struct {
	Dataset string
	SQL     string
}

// Result is a materialized result set. Rows follow Columns order.
type Result struct {
	Columns   []string      `json:"columns"`
	Rows      [][]any       `json:"rows"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"-"`
}

func (r Result) Empty() bool {
	return len(r.Rows) == 0
}

// Head returns a copy of r limited to the first n rows.
func (r Result) Head(n int) Result {
	if n < 0 {
		n = 0
	}
	if n > len(r.Rows) {
		n = len(r.Rows)
	}
	rows := make([][]any, n)
	copy(rows, r.Rows[:n])
	return Result{Columns: append([]string(nil), r.Columns...), Rows: rows, Truncated: r.Truncated, Duration: r.Duration}
}

// FiniteValue spells NaN and infinite floats as text, since JSON has no
// number for them. Other values are returned unchanged.
func FiniteValue(value any) any {
	var f float64
	switch typed := value.(type) {
	case float64:
		f = typed
	case float32:
		f = float64(typed)
	default:
		return value
	}
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return value
}

type Warehouse interface {
	ListTables(ctx context.Context, dataset string) ([]string, error)
	TableSchema(ctx context.Context, dataset, table string) ([]Column, error)
	Query(ctx context.Context, request Request) (Result, error)
}

// QueryError reports a statement the warehouse could not execute.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
