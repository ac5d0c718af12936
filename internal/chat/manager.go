package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/querychat/internal/observability"
)

// Manager owns the live sessions of a process.
type Manager struct {
	projectID      string
	datasets       []string
	defaultDataset string
	idleTTL        time.Duration
	now            func() time.Time
	newID          func() string

	mu       sync.RWMutex
	sessions map[string]*Session
}

type ManagerOption func(*Manager)

// WithIdleTTL makes EvictIdle drop sessions that have not been looked up for
// ttl. A zero ttl disables eviction.
func WithIdleTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTTL = ttl
	}
}

func NewManager(projectID string, datasets []string, defaultDataset string, opts ...ManagerOption) *Manager {
	if defaultDataset == "" && len(datasets) > 0 {
		defaultDataset = datasets[0]
	}
	m := &Manager{
		projectID:      projectID,
		datasets:       append([]string(nil), datasets...),
		defaultDataset: defaultDataset,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		sessions:       map[string]*Session{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Datasets() []string {
	return append([]string(nil), m.datasets...)
}

func (m *Manager) DefaultDataset() string {
	return m.defaultDataset
}

func (m *Manager) ValidateDataset(dataset string) error {
	if !slices.Contains(m.datasets, dataset) {
		return fmt.Errorf("%w: %q", ErrUnknownDataset, dataset)
	}
	return nil
}

// Create starts a session on dataset, or on the default dataset when empty.
func (m *Manager) Create(dataset string) (*Session, error) {
	if dataset == "" {
		dataset = m.defaultDataset
	}
	if err := m.ValidateDataset(dataset); err != nil {
		return nil, err
	}
	session := NewSession(m.newID(), m.projectID, dataset, m.now())

	m.mu.Lock()
	m.sessions[session.ID] = session
	count := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(count)
	return session, nil
}

// Get returns the session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	session.touch(m.now())
	return session, nil
}

// End drops the session and everything it caches.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	observability.SetActiveSessions(count)
	return nil
}

func (m *Manager) List() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle ends every session whose last use is at least the idle TTL ago
// and returns how many were ended.
func (m *Manager) EvictIdle() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	evicted := 0
	for id, session := range m.sessions {
		if !session.LastUsed().After(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		observability.SetActiveSessions(count)
	}
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (m *Manager) RunEviction(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if m.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := m.EvictIdle(); evicted > 0 {
				logger.Info("evicted idle sessions", slog.Int("count", evicted), slog.Int("active", m.Len()))
			}
		}
	}
}

// EvictionInterval is how often RunEviction should sweep for a given TTL.
func EvictionInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/10, time.Second), time.Minute)
}
