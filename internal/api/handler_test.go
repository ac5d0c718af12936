package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duckmesh/querychat/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	cfg := testConfig(t)

	h := NewHandler(cfg, Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace header")
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	cfg := testConfig(t)

	h := NewHandler(cfg, Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestConfigReadinessChecks(t *testing.T) {
	cfg := testConfig(t)
	if err := CheckLLMConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected missing api key error")
	}
	cfg.LLM.APIKey = "k"
	if err := CheckLLMConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckLLMConfig() error = %v", err)
	}
	if err := CheckWarehouseConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckWarehouseConfig() error = %v", err)
	}
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckObjectStoreConfig() for bigquery error = %v", err)
	}
	cfg.Warehouse.Backend = config.BackendDuckDB
	cfg.ObjectStore.Endpoint = ""
	if err := CheckObjectStoreConfig(cfg)(context.Background()); err == nil {
		t.Fatal("expected object store error for duckdb backend")
	}
}

func TestCheckHistorySchema(t *testing.T) {
	pending := 2
	check := CheckHistorySchema(func(context.Context) (int, error) { return pending, nil })
	if err := check(context.Background()); err == nil || !strings.Contains(err.Error(), "2 history migration(s) pending") {
		t.Fatalf("check() error = %v", err)
	}
	pending = 0
	if err := check(context.Background()); err != nil {
		t.Fatalf("check() error = %v", err)
	}
	failing := CheckHistorySchema(func(context.Context) (int, error) { return 0, errors.New("down") })
	if err := failing(context.Background()); err == nil {
		t.Fatal("expected error when migrations cannot be read")
	}
}

func TestUIServedOutsideAPIRoutes(t *testing.T) {
	cfg := testConfig(t)
	ui := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>chat</html>"))
	})
	h := NewHandler(cfg, Dependencies{UI: ui})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "chat") {
		t.Fatalf("ui status = %d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "<html>") {
		t.Fatalf("health status = %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestWriteJSONReportsUnencodablePayload(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]any{"value": math.Inf(1)})

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "ENCODING_FAILED" || body["retryable"] != false {
		t.Fatalf("body = %#v", body)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("querychat-api", mapLookup(map[string]string{
		"QUERYCHAT_WAREHOUSE_DATASETS":        "sales,ops",
		"QUERYCHAT_WAREHOUSE_DEFAULT_DATASET": "sales",
	}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v body=%s", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
