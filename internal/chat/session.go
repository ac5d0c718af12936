package chat

import (
	"sync"
	"time"

	"github.com/duckmesh/querychat/internal/conversation"
	"github.com/duckmesh/querychat/internal/schema"
)

// Session is the state of one conversation: the selected dataset, its cached
// schema snapshot and the transcript. Turns on a session are serialized.
type Session struct {
	ID        string
	ProjectID string
	CreatedAt time.Time

	turnMu sync.Mutex

	mu       sync.RWMutex
	dataset  string
	snapshot *schema.Snapshot
	log      *conversation.Store
	lastUsed time.Time
}

func NewSession(id, projectID, dataset string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		ProjectID: projectID,
		CreatedAt: createdAt,
		dataset:   dataset,
		log:       conversation.NewStore(),
		lastUsed:  createdAt,
	}
}

// LastUsed is when the session was created or last looked up.
func (s *Session) LastUsed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	if at.After(s.lastUsed) {
		s.lastUsed = at
	}
	s.mu.Unlock()
}

func (s *Session) Dataset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

// Snapshot returns the cached schema snapshot, if one has been loaded for the
// current dataset.
func (s *Session) Snapshot() (schema.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return schema.Snapshot{}, false
	}
	return *s.snapshot, true
}

func (s *Session) Conversation() *conversation.Store {
	return s.log
}

// selectDataset switches the dataset and drops the snapshot. It reports
// whether the dataset changed.
func (s *Session) selectDataset(dataset string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset == dataset {
		return false
	}
	s.dataset = dataset
	s.snapshot = nil
	return true
}

func (s *Session) setSnapshot(snapshot schema.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snapshot.Dataset != s.dataset {
		return
	}
	s.snapshot = &snapshot
}
