// Package conversation holds the per-session transcript.
package conversation

import (
	"sync"
	"time"

	"github.com/duckmesh/querychat/internal/warehouse"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry. For assistant turns SQL is exactly the
// statement that produced Results.
type Turn struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Results   *warehouse.Result `json:"results,omitempty"`
	SQL       string            `json:"sql,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store is an append-only, ordered transcript. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turns...)
}

// All returns a copy of the transcript in append order.
func (s *Store) All() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// LastSQL returns the SQL of the most recent assistant turn.
func (s *Store) LastSQL() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Role == RoleAssistant {
			return s.turns[i].SQL, true
		}
	}
	return "", false
}
