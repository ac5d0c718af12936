package api

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/duckmesh/querychat/internal/llm"
	"github.com/duckmesh/querychat/internal/warehouse"
)

func TestAskReturnsExchangeAndRecordsTranscript(t *testing.T) {
	env := newTestEnv(t)
	env.generator.responses = []string{"```sql\nSELECT COUNT(*) AS n FROM users\n```", "There are 42 users."}
	env.warehouse.results = []warehouse.Result{{Columns: []string{"n"}, Rows: [][]any{{int64(42)}}}}
	id := env.createSession(t, "sales")

	rr := env.do(http.MethodPost, "/v1/sessions/"+id+"/questions", `{"question":"How many users?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	answer, _ := body["answer"].(map[string]any)
	if answer["content"] != "There are 42 users." || answer["sql"] != "SELECT COUNT(*) AS n FROM users" {
		t.Fatalf("answer = %#v", answer)
	}

	rr = env.do(http.MethodGet, "/v1/sessions/"+id+"/turns", "")
	turns, _ := decodeBody(t, rr)["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("turns = %#v", turns)
	}

	rr = env.do(http.MethodGet, "/v1/sessions/"+id+"/sql", "")
	if rr.Code != http.StatusOK || decodeBody(t, rr)["sql"] != "SELECT COUNT(*) AS n FROM users" {
		t.Fatalf("sql status = %d body=%s", rr.Code, rr.Body.String())
	}
	if len(env.history.entries) != 1 {
		t.Fatalf("history entries = %d", len(env.history.entries))
	}
}

func TestAskNoResultsAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.generator.responses = []string{"SELECT id FROM users WHERE id < 0"}
	id := env.createSession(t, "sales")

	rr := env.do(http.MethodPost, "/v1/sessions/"+id+"/questions", `{"question":"negative ids?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	answer, _ := decodeBody(t, rr)["answer"].(map[string]any)
	if answer["content"] != "No results found." {
		t.Fatalf("answer = %#v", answer)
	}
	if len(env.generator.prompts) != 1 {
		t.Fatalf("llm calls = %d", len(env.generator.prompts))
	}
}

func TestAskChartWarningDoesNotFailTurn(t *testing.T) {
	env := newTestEnv(t)
	env.generator.responses = []string{"SELECT name FROM users", "Names listed."}
	env.warehouse.results = []warehouse.Result{{Columns: []string{"name"}, Rows: [][]any{{"ada"}}}}
	id := env.createSession(t, "sales")

	rr := env.do(http.MethodPost, "/v1/sessions/"+id+"/questions", `{"question":"plot the names"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if warning, _ := body["chart_warning"].(string); !strings.Contains(warning, "chart cannot be rendered") {
		t.Fatalf("chart_warning = %#v", body["chart_warning"])
	}
}

func TestAskWithNaNResultStillEncodes(t *testing.T) {
	env := newTestEnv(t)
	env.generator.responses = []string{"SELECT region, ratio FROM stats", "North has no ratio."}
	env.warehouse.results = []warehouse.Result{{
		Columns: []string{"region", "ratio"},
		Rows:    [][]any{{"north", warehouse.FiniteValue(math.NaN())}, {"south", 2.0}},
	}}
	id := env.createSession(t, "sales")

	rr := env.do(http.MethodPost, "/v1/sessions/"+id+"/questions", `{"question":"chart the ratio by region"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	bar, _ := body["chart"].(map[string]any)
	values, _ := bar["values"].([]any)
	if len(values) != 2 || values[0] != float64(0) || values[1] != float64(2) {
		t.Fatalf("chart = %#v", body["chart"])
	}

	rr = env.do(http.MethodGet, "/v1/sessions/"+id+"/turns", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("turns status = %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"NaN"`) {
		t.Fatalf("turns body = %s", rr.Body.String())
	}
}

func TestAskErrorsMapToEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(env *testEnv)
		wantStatus int
		wantCode   string
		wantSQL    string
	}{
		{
			name: "generation",
			setup: func(env *testEnv) {
				env.generator.err = &llm.GenerationError{Provider: "gemini", Model: "m", Err: errors.New("quota")}
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "LLM_GENERATION_FAILED",
		},
		{
			name: "policy",
			setup: func(env *testEnv) {
				env.generator.responses = []string{"DROP TABLE users"}
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SQL_NOT_ALLOWED",
			wantSQL:    "DROP TABLE users",
		},
		{
			name: "execution",
			setup: func(env *testEnv) {
				env.generator.responses = []string{"SELECT missing FROM users"}
				env.warehouse.queryErr = &warehouse.QueryError{SQL: "SELECT missing FROM users", Err: errors.New("Unrecognized name: missing")}
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "QUERY_EXECUTION_FAILED",
			wantSQL:    "SELECT missing FROM users",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env)
			id := env.createSession(t, "sales")

			rr := env.do(http.MethodPost, "/v1/sessions/"+id+"/questions", `{"question":"q"}`)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["error_code"] != tt.wantCode {
				t.Fatalf("error_code = %v", body["error_code"])
			}
			extra, _ := body["context"].(map[string]any)
			if tt.wantSQL != "" && extra["sql"] != tt.wantSQL {
				t.Fatalf("context = %#v", extra)
			}

			rr = env.do(http.MethodGet, "/v1/sessions/"+id+"/sql", "")
			if rr.Code != http.StatusNotFound {
				t.Fatalf("sql after failure status = %d", rr.Code)
			}
		})
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	env := newTestEnv(t)
	id := env.createSession(t, "sales")
	rr := env.do(http.MethodPost, "/v1/sessions/"+id+"/questions", `{"question":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	rr = env.do(http.MethodPost, "/v1/sessions/missing/questions", `{"question":"q"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d", rr.Code)
	}
}
