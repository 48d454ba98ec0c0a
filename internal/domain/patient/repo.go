package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// FindByHospitalNumber matches the demographics hospital number
	// case-insensitively.
	FindByHospitalNumber(ctx context.Context, hospitalNumber string) (*Patient, error)
	// Search returns patients matching q ordered by date of birth.
	Search(ctx context.Context, q Query) ([]*Patient, error)
}
