package duckdb

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/querychat/internal/warehouse"
)

func parquetColumns(data []byte) ([]warehouse.Column, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	fields := file.Schema().Fields()
	columns := make([]warehouse.Column, 0, len(fields))
	for _, field := range fields {
		columns = append(columns, warehouse.Column{Name: field.Name(), Type: fieldType(field)})
	}
	return columns, nil
}

func fieldType(field parquet.Field) string {
	typ := "STRUCT"
	if field.Leaf() {
		typ = leafType(field.Type())
	}
	if field.Repeated() {
		return "ARRAY<" + typ + ">"
	}
	return typ
}

func leafType(t parquet.Type) string {
	if logical := t.LogicalType(); logical != nil {
		switch {
		case logical.UTF8 != nil:
			return "STRING"
		case logical.Date != nil:
			return "DATE"
		case logical.Timestamp != nil:
			return "TIMESTAMP"
		case logical.Decimal != nil:
			return "DECIMAL"
		case logical.Json != nil:
			return "JSON"
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INT32"
	case parquet.Int64:
		return "INT64"
	case parquet.Int96:
		return "INT96"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return "BYTES"
	default:
		return t.String()
	}
}
