package audit

import (
	"context"
	"errors"
	"sync"
)

var (
	_ Recorder = (*Memory)(nil)
	_ Reader   = (*Memory)(nil)
)

// Memory keeps events in process, newest appended last.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(ctx context.Context, e *Event) error {
	if e == nil {
		return errors.New("audit: nil event")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *Memory) RecentByUser(ctx context.Context, userID string, limit int) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, 0, limit)
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.events[i].UserID == userID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// Events returns a snapshot of everything recorded, oldest first.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
