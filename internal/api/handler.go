package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/config"
	"github.com/duckmesh/querychat/internal/history"
	"github.com/duckmesh/querychat/internal/observability"
	"github.com/duckmesh/querychat/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

// ChatService runs turns and schema operations against a session.
type ChatService interface {
	Ask(ctx context.Context, session *chat.Session, question string) (chat.Exchange, error)
	SelectDataset(ctx context.Context, session *chat.Session, dataset string) (schema.Snapshot, error)
	Snapshot(ctx context.Context, session *chat.Session) (schema.Snapshot, error)
}

type HistoryLister interface {
	List(ctx context.Context, filter history.ListFilter) ([]history.Entry, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Sessions          *chat.Manager
	Chat              ChatService
	History           HistoryLister
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	route := func(pattern string, handle func(Dependencies, http.ResponseWriter, *http.Request)) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})
	}
	mux.HandleFunc("GET /v1/datasets", func(w http.ResponseWriter, r *http.Request) {
		handleListDatasets(cfg, deps, w, r)
	})
	route("POST /v1/sessions", handleCreateSession)
	route("GET /v1/sessions/{id}", handleGetSession)
	route("DELETE /v1/sessions/{id}", handleEndSession)
	route("PUT /v1/sessions/{id}/dataset", handleSelectDataset)
	route("GET /v1/sessions/{id}/schema", handleGetSchema)
	route("POST /v1/sessions/{id}/questions", handleAsk)
	route("GET /v1/sessions/{id}/turns", handleListTurns)
	route("GET /v1/sessions/{id}/sql", handleLastSQL)
	route("GET /v1/history", handleListHistory)

	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	return chain(mux, observability.TraceMiddleware, observability.InstrumentMiddleware(deps.Logger))
}

func CheckWarehouseConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if len(cfg.Warehouse.Datasets) == 0 {
			return errors.New("no warehouse datasets are configured")
		}
		if cfg.Warehouse.Backend == config.BackendBigQuery && cfg.Warehouse.ProjectID == "" {
			return errors.New("warehouse project id is not configured")
		}
		return nil
	}
}

func CheckLLMConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.LLM.APIKey == "" {
			return errors.New("llm api key is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Warehouse.Backend != config.BackendDuckDB {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

// CheckHistorySchema fails while history migrations are still pending.
func CheckHistorySchema(pending func(ctx context.Context) (int, error)) ReadinessCheck {
	return func(ctx context.Context) error {
		count, err := pending(ctx)
		if err != nil {
			return fmt.Errorf("read history migrations: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%d history migration(s) pending; run querychatctl migrate up", count)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON encodes payload before the status line goes out, so a payload
// that cannot be encoded becomes a 500 envelope instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(payload); err != nil {
		status = http.StatusInternalServerError
		body.Reset()
		_ = json.NewEncoder(&body).Encode(map[string]any{
			"error_code": "ENCODING_FAILED",
			"message":    "response could not be encoded as JSON",
			"retryable":  false,
			"context":    map[string]any{"details": err.Error()},
			"trace_id":   "",
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body.Bytes())
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
