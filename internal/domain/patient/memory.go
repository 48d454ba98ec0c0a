package patient

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/record"
)

// MemoryRepo is an in-process Repository for tests. Demographics are read
// from the record repository it shares with the record service.
type MemoryRepo struct {
	mu       sync.Mutex
	patients []*Patient
	records  record.Repository
}

func NewMemoryRepo(records record.Repository) *MemoryRepo {
	return &MemoryRepo{records: records}
}

func (m *MemoryRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	cp := *p
	m.patients = append(m.patients, &cp)
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) FindByHospitalNumber(ctx context.Context, hospitalNumber string) (*Patient, error) {
	matches, err := m.Search(ctx, Query{HospitalNumber: &hospitalNumber})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	return matches[0], nil
}

func (m *MemoryRepo) Search(ctx context.Context, q Query) ([]*Patient, error) {
	m.mu.Lock()
	patients := make([]*Patient, len(m.patients))
	copy(patients, m.patients)
	m.mu.Unlock()

	type hit struct {
		p   *Patient
		dob string
	}
	var hits []hit
	for _, p := range patients {
		recs, err := m.records.ListByPatients(ctx, []uuid.UUID{p.ID})
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if r.Kind != Demographics || !matches(r.Data, q) {
				continue
			}
			dob, _ := r.Data["date_of_birth"].(string)
			cp := *p
			hits = append(hits, hit{p: &cp, dob: dob})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if (hits[i].dob == "") != (hits[j].dob == "") {
			return hits[j].dob == ""
		}
		return hits[i].dob < hits[j].dob
	})
	out := make([]*Patient, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.p)
	}
	return out, nil
}

func matches(data map[string]interface{}, q Query) bool {
	if q.HospitalNumber != nil {
		hn, _ := data["hospital_number"].(string)
		if !strings.EqualFold(hn, *q.HospitalNumber) {
			return false
		}
	}
	if q.Name != nil {
		name, _ := data["name"].(string)
		if !strings.Contains(strings.ToLower(name), strings.ToLower(*q.Name)) {
			return false
		}
	}
	return true
}
