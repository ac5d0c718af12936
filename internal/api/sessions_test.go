package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/history"
	"github.com/duckmesh/querychat/internal/warehouse"
)

func TestListDatasets(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodGet, "/v1/datasets", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	datasets, _ := body["datasets"].([]any)
	if len(datasets) != 2 || body["default_dataset"] != "sales" {
		t.Fatalf("body = %#v", body)
	}
}

func TestCreateGetAndEndSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/sessions", "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	id, _ := created["session_id"].(string)
	if id == "" || created["dataset"] != "sales" || created["schema_loaded"] != false {
		t.Fatalf("created = %#v", created)
	}

	rr = env.do(http.MethodGet, "/v1/sessions/"+id, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = env.do(http.MethodDelete, "/v1/sessions/"+id, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(http.MethodGet, "/v1/sessions/"+id, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "SESSION_NOT_FOUND" {
		t.Fatalf("body = %#v", body)
	}
}

func TestCreateSessionRejectsUnknownDataset(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(http.MethodPost, "/v1/sessions", `{"dataset":"hr"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "UNKNOWN_DATASET" {
		t.Fatalf("body = %#v", body)
	}

	rr = env.do(http.MethodPost, "/v1/sessions", `{"dataset":"sales","extra":1}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}
}

func TestSchemaEndpointReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	env.warehouse.schemaErrs["sales.orders"] = errors.New("permission denied")
	id := env.createSession(t, "sales")

	rr := env.do(http.MethodGet, "/v1/sessions/"+id+"/schema", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	text, _ := body["text"].(string)
	if !strings.Contains(text, "Schema for table users:\n  id (INT64)") || !strings.Contains(text, "Schema for table orders:\n  (schema unavailable)") {
		t.Fatalf("text = %q", text)
	}
	failures, _ := body["failures"].([]any)
	if len(failures) != 1 {
		t.Fatalf("failures = %#v", body["failures"])
	}
}

func TestSelectDatasetReloadsSchema(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "sales")

	rr := env.do(http.MethodPut, "/v1/sessions/"+id+"/dataset", `{"dataset":"ops"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	schemaBody, _ := body["schema"].(map[string]any)
	if schemaBody["dataset"] != "ops" || !strings.Contains(schemaBody["text"].(string), "Schema for table tickets:") {
		t.Fatalf("schema = %#v", schemaBody)
	}

	rr = env.do(http.MethodPut, "/v1/sessions/"+id+"/dataset", `{"dataset":"hr"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown dataset status = %d", rr.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.history.entries = []history.Entry{{HistoryID: 1, SessionID: "s", SQL: "SELECT 1"}}

	rr := env.do(http.MethodGet, "/v1/history?session_id=s&limit=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if env.history.lastFilter.SessionID != "s" || env.history.lastFilter.Limit != 5 {
		t.Fatalf("filter = %+v", env.history.lastFilter)
	}

	rr = env.do(http.MethodGet, "/v1/history?limit=0", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d", rr.Code)
	}
}

func TestHistoryEndpointNotConfigured(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

type testEnv struct {
	handler   http.Handler
	warehouse *fakeWarehouse
	generator *scriptedGenerator
	history   *fakeHistory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	wh := &fakeWarehouse{
		tables: map[string][]string{"sales": {"users", "orders"}, "ops": {"tickets"}},
		schemas: map[string][]warehouse.Column{
			"sales.users":  {{Name: "id", Type: "INT64"}, {Name: "signup_date", Type: "DATE"}},
			"sales.orders": {{Name: "id", Type: "INT64"}},
			"ops.tickets":  {{Name: "id", Type: "INT64"}},
		},
		schemaErrs: map[string]error{},
	}
	gen := &scriptedGenerator{}
	hist := &fakeHistory{}
	manager := chat.NewManager(cfg.Warehouse.ProjectID, cfg.Warehouse.Datasets, cfg.Warehouse.DefaultDataset)
	service := chat.NewService(chat.Config{ReadOnly: true}, wh, gen, chat.WithHistory(hist))
	return &testEnv{
		handler:   NewHandler(cfg, Dependencies{Sessions: manager, Chat: service, History: hist}),
		warehouse: wh,
		generator: gen,
		history:   hist,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createSession(t *testing.T, dataset string) string {
	t.Helper()
	rr := e.do(http.MethodPost, "/v1/sessions", `{"dataset":"`+dataset+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create session status = %d body=%s", rr.Code, rr.Body.String())
	}
	id, _ := decodeBody(t, rr)["session_id"].(string)
	return id
}

type fakeWarehouse struct {
	mu         sync.Mutex
	tables     map[string][]string
	schemas    map[string][]warehouse.Column
	schemaErrs map[string]error
	results    []warehouse.Result
	queryErr   error
	queries    []warehouse.Request
}

func (f *fakeWarehouse) ListTables(_ context.Context, dataset string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tables, ok := f.tables[dataset]
	if !ok {
		return nil, errors.New("dataset not found")
	}
	return tables, nil
}

func (f *fakeWarehouse) TableSchema(_ context.Context, dataset, table string) ([]warehouse.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.schemaErrs[dataset+"."+table]; err != nil {
		return nil, err
	}
	return f.schemas[dataset+"."+table], nil
}

func (f *fakeWarehouse) Query(_ context.Context, request warehouse.Request) (warehouse.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, request)
	if f.queryErr != nil {
		return warehouse.Result{}, f.queryErr
	}
	if len(f.results) == 0 {
		return warehouse.Result{Columns: []string{"c"}, Duration: time.Millisecond}, nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	response := g.responses[0]
	g.responses = g.responses[1:]
	return response, nil
}

type fakeHistory struct {
	mu         sync.Mutex
	entries    []history.Entry
	lastFilter history.ListFilter
}

func (f *fakeHistory) Record(_ context.Context, entry history.Entry) (history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.HistoryID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, entry)
	return entry, nil
}

func (f *fakeHistory) List(_ context.Context, filter history.ListFilter) ([]history.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return append([]history.Entry(nil), f.entries...), nil
}
