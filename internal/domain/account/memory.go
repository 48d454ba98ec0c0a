package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*User
	profiles map[uuid.UUID]*Profile
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: make(map[uuid.UUID]*User), profiles: make(map[uuid.UUID]*Profile)}
}

func (m *MemoryRepo) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return ErrUsernameTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepo) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) SetPassword(_ context.Context, userID uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *MemoryRepo) GetProfile(_ context.Context, userID uuid.UUID) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepo) SaveProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}
