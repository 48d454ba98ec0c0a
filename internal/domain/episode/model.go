// Package episode holds episodes of care, their team taggings and the JSON
// API the browser client talks to.
package episode

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/platform/validate"
)

var (
	ErrNotFound      = errors.New("episode not found")
	ErrActiveEpisode = errors.New("Patient already has active episode")
	ErrInvalidField  = errors.New("invalid episode field")
)

// DefaultCategory is given to episodes created without one.
const DefaultCategory = "inpatient"

const isoDate = "2006-01-02"

type Episode struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	Category         string
	Active           bool
	DateOfAdmission  *time.Time
	DischargeDate    *time.Time
	ConsistencyToken string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Fields are the keys UpdateFromDict accepts.
var Fields = []string{"category", "active", "date_of_admission", "discharge_date"}

// Tagging links an episode to a team. UserID is set only for the mine team.
type Tagging struct {
	EpisodeID uuid.UUID
	TeamID    uuid.UUID
	TeamName  string
	UserID    *uuid.UUID
}

// Filter narrows the active episode list to a team. For the mine team
// UserID restricts it further to that user's taggings.
type Filter struct {
	Team   string
	UserID *uuid.UUID
}

func (e *Episode) fieldDict() map[string]interface{} {
	return map[string]interface{}{
		"id":                e.ID.String(),
		"patient_id":        e.PatientID.String(),
		"category":          e.Category,
		"active":            e.Active,
		"date_of_admission": formatDate(e.DateOfAdmission),
		"discharge_date":    formatDate(e.DischargeDate),
		"consistency_token": e.ConsistencyToken,
	}
}

func formatDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(isoDate)
}

// UpdateFromDict applies the serialisable fields in data after the
// consistency check. Other keys are ignored.
func (e *Episode) UpdateFromDict(data map[string]interface{}) error {
	if err := record.CheckToken(e.ConsistencyToken, data); err != nil {
		return err
	}
	next := *e
	if v, ok := data["category"]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: category", ErrInvalidField)
		}
		next.Category = s
	}
	if v, ok := data["active"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: active", ErrInvalidField)
		}
		next.Active = b
	}
	for key, dst := range map[string]**time.Time{
		"date_of_admission": &next.DateOfAdmission,
		"discharge_date":    &next.DischargeDate,
	} {
		v, ok := data[key]
		if !ok {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidField, key, err)
		}
		*dst = t
	}
	next.ConsistencyToken = record.NewToken()
	*e = next
	return nil
}

// parseDate accepts nil, "" or a date in either accepted layout.
func parseDate(v interface{}) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", v)
	}
	if s == "" {
		return nil, nil
	}
	t, err := validate.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// tagDict renders taggings as {team: true}. The mine team only appears when
// the viewer set it.
func tagDict(tags []Tagging, viewer uuid.UUID) map[string]interface{} {
	out := map[string]interface{}{}
	for _, t := range tags {
		if t.UserID != nil {
			if *t.UserID == viewer {
				out[t.TeamName] = true
			}
			continue
		}
		out[t.TeamName] = true
	}
	return out
}
