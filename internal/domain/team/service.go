package team

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var validName = regexp.MustCompile(`^[a-z0-9_]+$`)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ForUser lists the teams userID may tag episodes with.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID) ([]*Team, error) {
	teams, err := s.repo.ListVisible(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	if teams == nil {
		teams = []*Team{}
	}
	return teams, nil
}

func (s *Service) GetByName(ctx context.Context, name string) (*Team, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *Service) Create(ctx context.Context, t *Team) error {
	if !validName.MatchString(t.Name) {
		return fmt.Errorf("team name %q must be lower case letters, digits or underscores", t.Name)
	}
	if t.Title == "" {
		return fmt.Errorf("team %s needs a title", t.Name)
	}
	return s.repo.Create(ctx, t)
}

func (s *Service) AddMember(ctx context.Context, teamName string, userID uuid.UUID) error {
	t, err := s.repo.GetByName(ctx, teamName)
	if err != nil {
		return err
	}
	return s.repo.AddMember(ctx, t.ID, userID)
}
