package episode

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, e *Episode) error
	GetByID(ctx context.Context, id uuid.UUID) (*Episode, error)
	// Update saves e only if the stored token still equals oldToken.
	Update(ctx context.Context, e *Episode, oldToken string) error
	ListActive(ctx context.Context, f Filter) ([]*Episode, error)
	HasActive(ctx context.Context, patientID uuid.UUID) (bool, error)
	ListByPatients(ctx context.Context, patientIDs []uuid.UUID) ([]*Episode, error)

	Taggings(ctx context.Context, episodeIDs []uuid.UUID) ([]Tagging, error)
	AddTagging(ctx context.Context, t Tagging) error
	RemoveTagging(ctx context.Context, t Tagging) error
}
