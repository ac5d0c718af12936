package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/duckmesh/querychat/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), config.HistoryConfig{DSN: "  "}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	_, err := Open(context.Background(), config.HistoryConfig{DSN: "postgres://localhost:badport/history"})
	if err == nil || !strings.Contains(err.Error(), "parse history dsn") {
		t.Fatalf("Open() error = %v", err)
	}
}
