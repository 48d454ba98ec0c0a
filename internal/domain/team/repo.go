package team

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Team) error
	GetByName(ctx context.Context, name string) (*Team, error)
	// ListVisible returns active teams that are unrestricted or of which
	// userID is a member, ordered by order then title.
	ListVisible(ctx context.Context, userID uuid.UUID) ([]*Team, error)
	AddMember(ctx context.Context, teamID, userID uuid.UUID) error
}
