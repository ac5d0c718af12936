package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/querychat/internal/api"
	"github.com/duckmesh/querychat/internal/api/uistatic"
	"github.com/duckmesh/querychat/internal/app"
	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/config"
	"github.com/duckmesh/querychat/internal/migrations"
	"github.com/duckmesh/querychat/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("querychat-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	components, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize chat pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = components.Close() }()

	checks := []api.ReadinessCheck{
		api.CheckWarehouseConfig(cfg),
		api.CheckLLMConfig(cfg),
		api.CheckObjectStoreConfig(cfg),
	}
	deps := api.Dependencies{
		Logger:            logger,
		DependencyTimeout: time.Second,
		Sessions:          components.Sessions,
		Chat:              components.Chat,
	}
	if components.History != nil {
		deps.History = components.History
		runner := migrations.NewRunner()
		checks = append(checks,
			components.History.HealthCheck,
			api.CheckHistorySchema(func(ctx context.Context) (int, error) {
				return runner.Pending(ctx, components.HistoryDB)
			}),
		)
	}
	deps.Readiness = api.CombineReadinessChecks(checks...)
	if cfg.UI.Enabled {
		deps.UI = uistatic.Handler()
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go components.Sessions.RunEviction(ctx, chat.EvictionInterval(cfg.Chat.SessionIdleTTL), logger)
	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse", cfg.Warehouse.Backend),
			slog.String("llm_provider", cfg.LLM.Provider),
			slog.Bool("history", cfg.History.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
