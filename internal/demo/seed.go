package demo

import (
	"bytes"
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/querychat/internal/storage"
)

const (
	UsersTable  = "users"
	EventsTable = "events"

	seedFileName       = "seed.parquet"
	parquetContentType = "application/vnd.apache.parquet"
)

type Options struct {
	Dataset string
	Events  int
}

// Seed writes the users and events tables of a generated dataset into store
// as one parquet file each. Re-running with the same dataset overwrites them.
func Seed(ctx context.Context, store storage.ObjectStore, g *Generator, opts Options) ([]storage.ObjectInfo, error) {
	if opts.Events < 0 {
		return nil, fmt.Errorf("events must be >= 0")
	}
	var users, events bytes.Buffer
	if err := parquet.Write(&users, g.Users()); err != nil {
		return nil, fmt.Errorf("encode %s: %w", UsersTable, err)
	}
	if err := parquet.Write(&events, g.Events(opts.Events)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", EventsTable, err)
	}

	infos := make([]storage.ObjectInfo, 0, 2)
	for _, table := range []struct {
		name string
		data []byte
	}{
		{name: UsersTable, data: users.Bytes()},
		{name: EventsTable, data: events.Bytes()},
	} {
		key, err := storage.BuildTableFilePath(opts.Dataset, table.name, seedFileName)
		if err != nil {
			return infos, err
		}
		info, err := store.Put(ctx, key, bytes.NewReader(table.data), int64(len(table.data)), storage.PutOptions{ContentType: parquetContentType})
		if err != nil {
			return infos, fmt.Errorf("upload %s: %w", key, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
