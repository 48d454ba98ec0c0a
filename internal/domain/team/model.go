// Package team holds the teams episodes are tagged with.
package team

import (
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("team not found")

// Team is a tag an episode can carry. Restricted teams are only offered to
// their members.
type Team struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Active     bool      `json:"active"`
	Restricted bool      `json:"restricted"`
	Order      int       `json:"order"`
}

// Mine is the per-user team; taggings against it record which user set them.
const Mine = "mine"
