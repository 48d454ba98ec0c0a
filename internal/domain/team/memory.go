package team

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	teams   map[string]*Team
	members map[uuid.UUID]map[uuid.UUID]bool
}

func NewMemoryRepo(teams ...*Team) *MemoryRepo {
	m := &MemoryRepo{teams: make(map[string]*Team), members: make(map[uuid.UUID]map[uuid.UUID]bool)}
	for _, t := range teams {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		m.teams[t.Name] = t
	}
	return m
}

func (m *MemoryRepo) Create(_ context.Context, t *Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.New()
	cp := *t
	m.teams[t.Name] = &cp
	return nil
}

func (m *MemoryRepo) GetByName(_ context.Context, name string) (*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.teams[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryRepo) ListVisible(_ context.Context, userID uuid.UUID) ([]*Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Team
	for _, t := range m.teams {
		if !t.Active {
			continue
		}
		if t.Restricted && !m.members[t.ID][userID] {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sortTeams(out)
	return out, nil
}

func (m *MemoryRepo) AddMember(_ context.Context, teamID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[teamID] == nil {
		m.members[teamID] = make(map[uuid.UUID]bool)
	}
	m.members[teamID][userID] = true
	return nil
}

func sortTeams(ts []*Team) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Order != ts[j].Order {
			return ts[i].Order < ts[j].Order
		}
		return ts[i].Title < ts[j].Title
	})
}
