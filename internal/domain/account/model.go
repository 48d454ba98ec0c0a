// Package account handles users, their login and the forced password change
// that follows a first login.
package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	ErrBannedPassword     = errors.New("that password is too common, choose another")
	ErrUsernameTaken      = errors.New("username already in use")
)

type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Profile carries per-user flags. Users without one are made to change their
// password on their next login.
type Profile struct {
	UserID              uuid.UUID
	ForcePasswordChange bool
}
