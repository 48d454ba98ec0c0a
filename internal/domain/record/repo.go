package record

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update saves r only if the stored token still equals oldToken.
	Update(ctx context.Context, r *Record, oldToken string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByEpisodes(ctx context.Context, episodeIDs []uuid.UUID) ([]*Record, error)
	ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*Record, error)
}
