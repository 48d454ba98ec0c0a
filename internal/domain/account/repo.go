package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SetPassword(ctx context.Context, userID uuid.UUID, hash string) error
	// GetProfile returns ErrNotFound when the user has no profile yet.
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}
