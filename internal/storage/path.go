package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const tableFileSuffix = ".parquet"

// DatasetPrefix is the key prefix holding every table of a dataset.
func DatasetPrefix(dataset string) (string, error) {
	if err := validatePathComponent(dataset, "dataset"); err != nil {
		return "", err
	}
	return dataset + "/", nil
}

// TablePrefix is the key prefix holding the parquet files of one table.
func TablePrefix(dataset, table string) (string, error) {
	if err := validatePathComponent(dataset, "dataset"); err != nil {
		return "", err
	}
	if err := validatePathComponent(table, "table name"); err != nil {
		return "", err
	}
	return path.Join(dataset, table) + "/", nil
}

// BuildTableFilePath lays out table files as <dataset>/<table>/<file>.parquet.
func BuildTableFilePath(dataset, table, fileName string) (string, error) {
	prefix, err := TablePrefix(dataset, table)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(path.Base(fileName), tableFileSuffix)
	if err := validatePathComponent(base, "file name"); err != nil {
		return "", err
	}
	return prefix + base + tableFileSuffix, nil
}

// ParseTableFilePath splits a key produced by BuildTableFilePath. ok is false
// for keys outside that layout.
func ParseTableFilePath(key string) (dataset, table string, ok bool) {
	if !strings.HasSuffix(key, tableFileSuffix) {
		return "", "", false
	}
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return "", "", false
	}
	if validatePathComponent(parts[0], "dataset") != nil || validatePathComponent(parts[1], "table name") != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
