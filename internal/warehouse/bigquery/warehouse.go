package bigquery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/duckmesh/querychat/internal/warehouse"
)

type Config struct {
	ProjectID       string
	Location        string
	CredentialsJSON string
	CredentialsFile string
	MaxRows         int
}

type client interface {
	ListTables(ctx context.Context, dataset string) ([]string, error)
	TableSchema(ctx context.Context, dataset, table string) (bigquery.Schema, error)
	Query(ctx context.Context, dataset, sql string, maxRows int) (queryResult, error)
	Close() error
}

type queryResult struct {
	Schema    bigquery.Schema
	Rows      [][]bigquery.Value
	Truncated bool
}

type Warehouse struct {
	client  client
	maxRows int
}

func New(ctx context.Context, cfg Config) (*Warehouse, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("bigquery project id is required")
	}
	opts := make([]option.ClientOption, 0, 1)
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	bq, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	if cfg.Location != "" {
		bq.Location = cfg.Location
	}
	return NewWithClient(&bigQueryClient{client: bq}, cfg.MaxRows), nil
}

func NewWithClient(c client, maxRows int) *Warehouse {
	return &Warehouse{client: c, maxRows: maxRows}
}

func (w *Warehouse) ListTables(ctx context.Context, dataset string) ([]string, error) {
	if err := validateDataset(dataset); err != nil {
		return nil, err
	}
	tables, err := w.client.ListTables(ctx, dataset)
	if err != nil {
		return nil, fmt.Errorf("list tables of dataset %q: %w", dataset, err)
	}
	sort.Strings(tables)
	return tables, nil
}

func (w *Warehouse) TableSchema(ctx context.Context, dataset, table string) ([]warehouse.Column, error) {
	if err := validateDataset(dataset); err != nil {
		return nil, err
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table is required")
	}
	schema, err := w.client.TableSchema(ctx, dataset, table)
	if err != nil {
		return nil, fmt.Errorf("get metadata of %s.%s: %w", dataset, table, err)
	}
	columns := make([]warehouse.Column, 0, len(schema))
	for _, field := range schema {
		columns = append(columns, warehouse.Column{Name: field.Name, Type: fieldType(field)})
	}
	return columns, nil
}

func (w *Warehouse) Query(ctx context.Context, request warehouse.Request) (warehouse.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return warehouse.Result{}, fmt.Errorf("sql is required")
	}
	if err := validateDataset(request.Dataset); err != nil {
		return warehouse.Result{}, err
	}

	start := time.Now()
	raw, err := w.client.Query(ctx, request.Dataset, request.SQL, w.maxRows)
	if err != nil {
		return warehouse.Result{}, &warehouse.QueryError{SQL: request.SQL, Err: err}
	}

	columns := make([]string, 0, len(raw.Schema))
	for _, field := range raw.Schema {
		columns = append(columns, field.Name)
	}
	rows := make([][]any, 0, len(raw.Rows))
	for _, values := range raw.Rows {
		row := make([]any, len(values))
		for i, value := range values {
			row[i] = warehouse.FiniteValue(value)
		}
		rows = append(rows, row)
	}
	return warehouse.Result{
		Columns:   columns,
		Rows:      rows,
		Truncated: raw.Truncated,
		Duration:  time.Since(start),
	}, nil
}

func (w *Warehouse) Close() error {
	return w.client.Close()
}

func fieldType(field *bigquery.FieldSchema) string {
	typ := string(field.Type)
	if field.Type == bigquery.RecordFieldType {
		typ = "STRUCT"
	}
	if field.Repeated {
		return "ARRAY<" + typ + ">"
	}
	return typ
}

func validateDataset(dataset string) error {
	if strings.TrimSpace(dataset) == "" {
		return fmt.Errorf("dataset is required")
	}
	return nil
}

type bigQueryClient struct {
	client *bigquery.Client
}

func (c *bigQueryClient) ListTables(ctx context.Context, dataset string) ([]string, error) {
	it := c.client.Dataset(dataset).Tables(ctx)
	tables := make([]string, 0)
	for {
		table, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		tables = append(tables, table.TableID)
	}
	return tables, nil
}

func (c *bigQueryClient) TableSchema(ctx context.Context, dataset, table string) (bigquery.Schema, error) {
	metadata, err := c.client.Dataset(dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return metadata.Schema, nil
}

func (c *bigQueryClient) Query(ctx context.Context, dataset, sql string, maxRows int) (queryResult, error) {
	q := c.client.Query(sql)
	q.DefaultProjectID = c.client.Project()
	q.DefaultDatasetID = dataset

	job, err := q.Run(ctx)
	if err != nil {
		return queryResult{}, fmt.Errorf("submit query job: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return queryResult{}, fmt.Errorf("wait for query job %s: %w", job.ID(), err)
	}
	if err := status.Err(); err != nil {
		return queryResult{}, err
	}
	it, err := job.Read(ctx)
	if err != nil {
		return queryResult{}, fmt.Errorf("read query job %s: %w", job.ID(), err)
	}

	result := queryResult{Rows: make([][]bigquery.Value, 0)}
	for {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = it.TotalRows > uint64(len(result.Rows))
			break
		}
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return queryResult{}, fmt.Errorf("iterate rows: %w", err)
		}
		result.Rows = append(result.Rows, row)
	}
	result.Schema = it.Schema
	return result, nil
}

func (c *bigQueryClient) Close() error {
	return c.client.Close()
}
