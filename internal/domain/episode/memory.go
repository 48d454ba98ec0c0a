package episode

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/record"
)

// MemoryRepo is an in-process Repository for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	episodes map[uuid.UUID]*Episode
	taggings []Tagging
	seq      int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{episodes: make(map[uuid.UUID]*Episode)}
}

func (m *MemoryRepo) Create(_ context.Context, e *Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	m.seq++
	e.CreatedAt = time.Now().Add(time.Duration(m.seq))
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.episodes[e.ID] = &cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.episodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryRepo) Update(_ context.Context, e *Episode, oldToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.episodes[e.ID]
	if !ok || stored.ConsistencyToken != oldToken {
		return record.ErrConsistency
	}
	e.UpdatedAt = time.Now()
	cp := *e
	m.episodes[e.ID] = &cp
	return nil
}

func (m *MemoryRepo) ListActive(_ context.Context, f Filter) ([]*Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(e *Episode) bool {
		if !e.Active {
			return false
		}
		if f.Team == "" {
			return true
		}
		for _, t := range m.taggings {
			if t.EpisodeID != e.ID || t.TeamName != f.Team {
				continue
			}
			if f.UserID == nil || (t.UserID != nil && *t.UserID == *f.UserID) {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryRepo) HasActive(_ context.Context, patientID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.episodes {
		if e.PatientID == patientID && e.Active {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRepo) ListByPatients(_ context.Context, patientIDs []uuid.UUID) ([]*Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(func(e *Episode) bool {
		for _, id := range patientIDs {
			if e.PatientID == id {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryRepo) list(match func(*Episode) bool) []*Episode {
	var out []*Episode
	for _, e := range m.episodes {
		if match(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemoryRepo) Taggings(_ context.Context, episodeIDs []uuid.UUID) ([]Tagging, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Tagging
	for _, t := range m.taggings {
		for _, id := range episodeIDs {
			if t.EpisodeID == id {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryRepo) AddTagging(_ context.Context, t Tagging) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.taggings {
		if sameTagging(existing, t) {
			return nil
		}
	}
	m.taggings = append(m.taggings, t)
	return nil
}

func (m *MemoryRepo) RemoveTagging(_ context.Context, t Tagging) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.taggings[:0]
	for _, existing := range m.taggings {
		if !sameTagging(existing, t) {
			kept = append(kept, existing)
		}
	}
	m.taggings = kept
	return nil
}

func sameTagging(a, b Tagging) bool {
	if a.EpisodeID != b.EpisodeID || a.TeamID != b.TeamID {
		return false
	}
	if (a.UserID == nil) != (b.UserID == nil) {
		return false
	}
	return a.UserID == nil || *a.UserID == *b.UserID
}
