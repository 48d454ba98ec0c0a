package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LoginObserver counts failed logins.
type LoginObserver interface {
	LoginFailed()
}

type Service struct {
	repo     Repository
	limiter  Limiter
	observer LoginObserver
	cost     int
}

func NewService(repo Repository, limiter Limiter) *Service {
	return &Service{repo: repo, limiter: limiter, cost: bcrypt.DefaultCost}
}

func (s *Service) SetObserver(o LoginObserver) {
	s.observer = o
}

// CreateUser stores an active user with a hashed password. The user has no
// profile, so the first login forces a password change.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Username: username, PasswordHash: string(hash), IsActive: true}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks a username and password under the login throttle.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, username); err != nil {
			s.failed()
			return nil, err
		}
	}
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.failed()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.IsActive || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		s.failed()
		return nil, ErrInvalidCredentials
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, username); err != nil {
			return nil, fmt.Errorf("reset login attempts: %w", err)
		}
	}
	return u, nil
}

// NeedsPasswordChange reports whether userID must change password before
// continuing. A user without a profile gets one that forces the change.
func (s *Service) NeedsPasswordChange(ctx context.Context, userID uuid.UUID) (bool, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		if err := s.repo.SaveProfile(ctx, &Profile{UserID: userID, ForcePasswordChange: true}); err != nil {
			return false, fmt.Errorf("create profile: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get profile: %w", err)
	}
	return p.ForcePasswordChange, nil
}

// ChangePassword replaces the password after checking the old one and
// clears the forced change.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	if IsBanned(newPassword) {
		return ErrBannedPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return s.repo.SaveProfile(ctx, &Profile{UserID: userID, ForcePasswordChange: false})
}

func (s *Service) failed() {
	if s.observer != nil {
		s.observer.LoginFailed()
	}
}
