// Package demo generates a small synthetic commerce dataset for trying the
// duckdb backend without a real warehouse.
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type UserRow struct {
	UserID     string    `parquet:"user_id"`
	Country    string    `parquet:"country"`
	Device     string    `parquet:"device"`
	SignedUpAt time.Time `parquet:"signed_up_at"`
}

type EventRow struct {
	EventID    int64     `parquet:"event_id"`
	UserID     string    `parquet:"user_id"`
	SessionID  string    `parquet:"session_id"`
	EventType  string    `parquet:"event_type"`
	Amount     float64   `parquet:"amount"`
	Currency   string    `parquet:"currency"`
	OccurredAt time.Time `parquet:"occurred_at"`
}

var (
	countries = []string{"US", "DE", "GB", "IN", "JP", "BR"}
	devices   = []string{"desktop", "mobile", "tablet"}
)

// Generator is deterministic for a given seed and clock.
type Generator struct {
	rnd             *rand.Rand
	userCardinality int
	sequence        int64
	now             func() time.Time
}

func NewGenerator(seed int64, userCardinality int) *Generator {
	if userCardinality <= 0 {
		userCardinality = 1
	}
	return &Generator{
		rnd:             rand.New(rand.NewSource(seed)),
		userCardinality: userCardinality,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Users returns one row per user id. Sign-up times fall within the 365 days
// before now.
func (g *Generator) Users() []UserRow {
	now := g.now().Truncate(time.Second)
	users := make([]UserRow, 0, g.userCardinality)
	for i := 1; i <= g.userCardinality; i++ {
		users = append(users, UserRow{
			UserID:     userID(i),
			Country:    pickOne(g.rnd, countries),
			Device:     pickOne(g.rnd, devices),
			SignedUpAt: now.Add(-time.Duration(g.rnd.Intn(365*24)) * time.Hour),
		})
	}
	return users
}

// Events returns n events spread over the 30 days before now with
// increasing event ids.
func (g *Generator) Events(n int) []EventRow {
	now := g.now().Truncate(time.Second)
	events := make([]EventRow, 0, n)
	for i := 0; i < n; i++ {
		g.sequence++
		eventType := g.pickEventType()
		events = append(events, EventRow{
			EventID:    g.sequence,
			UserID:     userID(g.rnd.Intn(g.userCardinality) + 1),
			SessionID:  fmt.Sprintf("sess-%08x", g.rnd.Uint32()),
			EventType:  eventType,
			Amount:     g.pickAmount(eventType),
			Currency:   "USD",
			OccurredAt: now.Add(-time.Duration(g.rnd.Intn(30*24*60)) * time.Minute),
		})
	}
	return events
}

func (g *Generator) pickEventType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func userID(n int) string {
	return fmt.Sprintf("user-%04d", n)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
