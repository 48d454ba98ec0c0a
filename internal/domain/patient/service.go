package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/domain/schema"
)

type Service struct {
	repo    Repository
	records *record.Service
}

func NewService(repo Repository, records *record.Service) *Service {
	return &Service{repo: repo, records: records}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Create stores a new patient together with its empty singleton records.
func (s *Service) Create(ctx context.Context) (*Patient, error) {
	p := &Patient{}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	if err := s.records.CreateSingletons(ctx, schema.LevelPatient, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// GetOrCreateByHospitalNumber returns the patient with hospitalNumber, or a
// new patient when none matches. An empty number always creates.
func (s *Service) GetOrCreateByHospitalNumber(ctx context.Context, hospitalNumber string) (*Patient, bool, error) {
	if hospitalNumber != "" {
		p, err := s.repo.FindByHospitalNumber(ctx, hospitalNumber)
		if err == nil {
			return p, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("find patient: %w", err)
		}
	}
	p, err := s.Create(ctx)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// UpdateDemographics saves data onto the patient's demographics record.
func (s *Service) UpdateDemographics(ctx context.Context, id uuid.UUID, data map[string]interface{}) (*record.Record, error) {
	return s.records.UpdateSingleton(ctx, Demographics, id, data)
}

func (s *Service) Search(ctx context.Context, q Query) ([]*Patient, error) {
	if q.Empty() {
		return nil, ErrNoSearchTerms
	}
	patients, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return patients, nil
}

// Columns lists the patient-level record kinds.
func (s *Service) Columns() []schema.Column {
	return s.records.Columns().ColumnsAt(schema.LevelPatient)
}
