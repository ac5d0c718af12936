// Package app assembles the chat pipeline from configuration. Both the HTTP
// server and the terminal console build their components here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/config"
	"github.com/duckmesh/querychat/internal/history"
	historypostgres "github.com/duckmesh/querychat/internal/history/postgres"
	"github.com/duckmesh/querychat/internal/llm"
	"github.com/duckmesh/querychat/internal/sqltext"
	"github.com/duckmesh/querychat/internal/storage"
	s3store "github.com/duckmesh/querychat/internal/storage/s3"
	"github.com/duckmesh/querychat/internal/warehouse"
	bigquerywarehouse "github.com/duckmesh/querychat/internal/warehouse/bigquery"
	duckdbwarehouse "github.com/duckmesh/querychat/internal/warehouse/duckdb"
)

const (
	dialectBigQuery = string(sqltext.BigQuery)
	dialectDuckDB   = string(sqltext.DuckDB)
)

type Components struct {
	Warehouse   warehouse.Warehouse
	Generator   llm.Generator
	History     history.Repository
	HistoryDB   *sql.DB
	ObjectStore storage.ObjectStore
	Sessions    *chat.Manager
	Chat        *chat.Service

	closers []func() error
}

// Close releases warehouse clients and database handles in reverse order of
// creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	w, err := c.openWarehouse(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Warehouse = w

	generator, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("initialize llm: %w", err)
	}
	c.Generator = generator

	opts := []chat.Option{chat.WithLogger(logger)}
	if cfg.History.Enabled {
		db, err := historypostgres.Open(ctx, cfg.History)
		if err != nil {
			return nil, fmt.Errorf("open history db: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		c.HistoryDB = db
		repo := historypostgres.NewRepository(db)
		c.History = repo
		opts = append(opts, chat.WithHistory(repo))
	}

	c.Sessions = chat.NewManager(cfg.Warehouse.ProjectID, cfg.Warehouse.Datasets, cfg.Warehouse.DefaultDataset,
		chat.WithIdleTTL(cfg.Chat.SessionIdleTTL))
	c.Chat = chat.NewService(chat.Config{
		Dialect:          Dialect(cfg.Warehouse.Backend),
		SampleRows:       cfg.Chat.SampleRows,
		NoResultsMessage: cfg.Chat.NoResultsMessage,
		ReadOnly:         cfg.Chat.ReadOnly,
	}, c.Warehouse, c.Generator, opts...)

	ok = true
	return c, nil
}

// OpenObjectStore connects to the S3 compatible bucket that backs the duckdb
// warehouse.
func OpenObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (*s3store.Store, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize object store: %w", err)
	}
	return store, nil
}

// OpenHistoryDB opens the history database without building the rest of the
// pipeline. Migrations use it.
func OpenHistoryDB(ctx context.Context, cfg config.HistoryConfig) (*sql.DB, error) {
	return historypostgres.Open(ctx, cfg)
}

func Dialect(backend string) string {
	if strings.EqualFold(strings.TrimSpace(backend), config.BackendDuckDB) {
		return dialectDuckDB
	}
	return dialectBigQuery
}

func (c *Components) openWarehouse(ctx context.Context, cfg config.Config) (warehouse.Warehouse, error) {
	switch cfg.Warehouse.Backend {
	case config.BackendBigQuery:
		w, err := bigquerywarehouse.New(ctx, bigquerywarehouse.Config{
			ProjectID:       cfg.Warehouse.ProjectID,
			Location:        cfg.Warehouse.Location,
			CredentialsJSON: cfg.Warehouse.CredentialsJSON,
			CredentialsFile: cfg.Warehouse.CredentialsFile,
			MaxRows:         cfg.Chat.MaxResultRows,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, w.Close)
		return w, nil
	case config.BackendDuckDB:
		store, err := OpenObjectStore(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		c.ObjectStore = store
		return duckdbwarehouse.New(store, cfg.Chat.MaxResultRows), nil
	default:
		return nil, fmt.Errorf("unsupported warehouse backend %q", cfg.Warehouse.Backend)
	}
}
