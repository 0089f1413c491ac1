package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"hybridaccess.org/internal/ids"
)

var _ Store = (*Memory)(nil)

// Memory implements Store in process, used for tests and DSN-less runs.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]*User
	byEmail   map[string]string
	resources map[string]*Resource
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		users:     make(map[string]*User),
		byEmail:   make(map[string]string),
		resources: make(map[string]*Resource),
	}
}

func (m *Memory) Users(context.Context) UserStore         { return (*memoryUsers)(m) }
func (m *Memory) Resources(context.Context) ResourceStore { return (*memoryResources)(m) }

type memoryUsers Memory

func (m *memoryUsers) Create(ctx context.Context, u *User) error {
	email := normalizeEmail(u.Email)
	if email == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byEmail[email]; exists {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = email
	cp := *u
	m.users[u.ID] = &cp
	m.byEmail[email] = u.ID
	return nil
}

func (m *memoryUsers) Find(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *memoryUsers) IncrementFailedAttempts(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedAttempts++
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUsers) ResetFailedAttempts(ctx context.Context, userID string, loginTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedAttempts = 0
	t := loginTime
	u.LastLogin = &t
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUsers) SetCodeSecret(ctx context.Context, userID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.CodeSecret = secret
	u.CodeEnabled = false
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUsers) EnableCode(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.CodeSecret == "" {
		return ErrInvalidInput
	}
	u.CodeEnabled = true
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryUsers) SetFaceEnrolled(ctx context.Context, userID string, enrolled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FaceEnrolled = enrolled
	u.UpdatedAt = time.Now().UTC()
	return nil
}

type memoryResources Memory

func (m *memoryResources) Create(ctx context.Context, r *Resource) error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.resources {
		if existing.Name == r.Name {
			return ErrAlreadyExists
		}
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	m.resources[r.ID] = &cp
	return nil
}

func (m *memoryResources) Find(ctx context.Context, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryResources) List(ctx context.Context) ([]*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Resource, 0, len(m.resources))
	for _, r := range m.resources {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
