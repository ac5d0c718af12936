package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTurnCountsFailuresByStage(t *testing.T) {
	okBefore := testutil.ToFloat64(turnsTotal.WithLabelValues("ok"))
	failedBefore := testutil.ToFloat64(turnsTotal.WithLabelValues("failed"))
	stageBefore := testutil.ToFloat64(turnStageFailuresTotal.WithLabelValues("execute"))

	ObserveTurn("")
	ObserveTurn("execute")

	if got := testutil.ToFloat64(turnsTotal.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Fatalf("ok turns delta = %v", got)
	}
	if got := testutil.ToFloat64(turnsTotal.WithLabelValues("failed")) - failedBefore; got != 1 {
		t.Fatalf("failed turns delta = %v", got)
	}
	if got := testutil.ToFloat64(turnStageFailuresTotal.WithLabelValues("execute")) - stageBefore; got != 1 {
		t.Fatalf("execute failures delta = %v", got)
	}
}

func TestSchemaFailuresAndActiveSessions(t *testing.T) {
	before := testutil.ToFloat64(schemaTableFailuresTotal)
	IncrementSchemaTableFailures(0)
	IncrementSchemaTableFailures(2)
	if got := testutil.ToFloat64(schemaTableFailuresTotal) - before; got != 2 {
		t.Fatalf("schema failures delta = %v", got)
	}

	SetActiveSessions(-1)
	if got := testutil.ToFloat64(activeSessions); got != 0 {
		t.Fatalf("active sessions = %v", got)
	}
	SetActiveSessions(3)
	if got := testutil.ToFloat64(activeSessions); got != 3 {
		t.Fatalf("active sessions = %v", got)
	}
}

func TestObserveDurations(t *testing.T) {
	ObserveLLMRequest("query", 120*time.Millisecond, nil)
	ObserveQuery(time.Second, errors.New("boom"))
	if got := testutil.CollectAndCount(llmRequestDurationSeconds); got < 1 {
		t.Fatalf("llm histogram series = %d", got)
	}
	if got := testutil.CollectAndCount(queryDurationSeconds); got < 1 {
		t.Fatalf("query histogram series = %d", got)
	}
}
