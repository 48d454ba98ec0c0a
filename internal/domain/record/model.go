// Package record stores the per-kind subrecords of episodes and patients and
// guards their updates with consistency tokens.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/schema"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrConsistency  = errors.New("item has changed")
	ErrMissingToken = errors.New("missing field (consistency_token)")
	ErrUnknownField = errors.New("unknown field")
	ErrSingleton    = errors.New("singleton records cannot be created or deleted")
	ErrUnknownKind  = errors.New("unknown record kind")
)

// Record is one subrecord. Exactly one of PatientID and EpisodeID is set.
type Record struct {
	ID               uuid.UUID
	Kind             string
	PatientID        *uuid.UUID
	EpisodeID        *uuid.UUID
	Data             map[string]interface{}
	ConsistencyToken string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// reserved keys are owned by the record itself and never stored in Data.
var reserved = map[string]bool{
	"id":                true,
	"consistency_token": true,
	"episode_id":        true,
	"patient_id":        true,
	"created":           true,
	"updated":           true,
	"created_by_id":     true,
	"updated_by_id":     true,
}

// NewToken returns a fresh 8 character consistency token.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CheckToken applies the optimistic consistency rule. An item that has never
// been saved with a token accepts any payload; otherwise the payload must
// echo the stored token.
func CheckToken(stored string, data map[string]interface{}) error {
	if stored == "" {
		return nil
	}
	raw, ok := data["consistency_token"]
	if !ok {
		return ErrMissingToken
	}
	token, _ := raw.(string)
	if token != stored {
		return ErrConsistency
	}
	return nil
}

func (r *Record) ToDict() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Data)+5)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID.String()
	out["consistency_token"] = r.ConsistencyToken
	if r.EpisodeID != nil {
		out["episode_id"] = r.EpisodeID.String()
	}
	if r.PatientID != nil {
		out["patient_id"] = r.PatientID.String()
	}
	out["created"] = formatTime(r.CreatedAt)
	out["updated"] = formatTime(r.UpdatedAt)
	return out
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// UpdateFromDict merges data into the record after the consistency check and
// issues a new token. Keys not declared on the column are rejected when the
// column declares its fields.
func (r *Record) UpdateFromDict(data map[string]interface{}, col schema.Column) error {
	if err := CheckToken(r.ConsistencyToken, data); err != nil {
		return err
	}
	next := make(map[string]interface{}, len(r.Data)+len(data))
	for k, v := range r.Data {
		next[k] = v
	}
	for k, v := range data {
		if reserved[k] {
			continue
		}
		if !col.AllowsField(k) {
			return fmt.Errorf("%w: %s on %s", ErrUnknownField, k, col.Name)
		}
		next[k] = Sanitize(v)
	}
	r.Data = next
	r.ConsistencyToken = NewToken()
	return nil
}

// Copy returns a new unsaved record with the same kind and data attached to
// episodeID.
func (r *Record) Copy(episodeID uuid.UUID) *Record {
	data := make(map[string]interface{}, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return &Record{
		Kind:             r.Kind,
		EpisodeID:        &episodeID,
		Data:             data,
		ConsistencyToken: r.ConsistencyToken,
	}
}
