package session

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/lcstudy-go/internal/domain"
)

// Store holds live guessing sessions. Get refreshes the session's idle
// clock; CleanupExpired drops sessions idle longer than maxAge.
type Store interface {
	Save(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]*domain.Session, error)
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)
}

// MemoryStore is the default single-process store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	access   map[string]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		access:   make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.access[s.ID] = m.now()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	m.access[id] = m.now()
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.access, id)
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) CleanupExpired(_ context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	n := 0
	for id, at := range m.access {
		if at.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.access, id)
			n++
		}
	}
	return n, nil
}
