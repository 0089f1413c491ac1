package session

import (
	"context"
	"sync"
	"time"

	"hybridaccess.org/internal/factor"
)

var _ Store = (*Memory)(nil)

// Memory implements Store with in-process concurrency safety.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemory creates an empty in-memory session store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*Session)}
}

func (m *Memory) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s.clone()
	return nil
}

func (m *Memory) Find(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *Memory) RecordFactor(ctx context.Context, id string, kind factor.Kind, now time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.Valid(now) {
		return nil, ErrExpired
	}
	s.addVerified(kind)
	return s.clone(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if !s.Valid(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}
