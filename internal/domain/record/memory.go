package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository for tests and local tooling.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	seq     int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[uuid.UUID]*Record)}
}

func clone(r *Record) *Record {
	cp := *r
	cp.Data = make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		cp.Data[k] = v
	}
	return &cp
}

func (m *MemoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = uuid.New()
	if r.Data == nil {
		r.Data = map[string]interface{}{}
	}
	// Sequence keeps listing order stable when records share a timestamp.
	m.seq++
	r.CreatedAt = time.Now().Add(time.Duration(m.seq))
	r.UpdatedAt = r.CreatedAt
	m.records[r.ID] = clone(r)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryRepo) Update(_ context.Context, r *Record, oldToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[r.ID]
	if !ok || stored.ConsistencyToken != oldToken {
		return ErrConsistency
	}
	r.UpdatedAt = time.Now()
	m.records[r.ID] = clone(r)
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryRepo) ListByEpisodes(_ context.Context, ids []uuid.UUID) ([]*Record, error) {
	return m.list(func(r *Record) bool { return r.EpisodeID != nil && contains(ids, *r.EpisodeID) }), nil
}

func (m *MemoryRepo) ListByPatients(_ context.Context, ids []uuid.UUID) ([]*Record, error) {
	return m.list(func(r *Record) bool { return r.PatientID != nil && contains(ids, *r.PatientID) }), nil
}

func (m *MemoryRepo) list(match func(*Record) bool) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.records {
		if match(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func contains(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
