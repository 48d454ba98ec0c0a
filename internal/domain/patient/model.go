// Package patient holds patients and their patient-level records.
package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/domain/schema"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrNoSearchTerms = errors.New("No search terms")
)

// Demographics is the patient singleton carrying hospital number and name.
const Demographics = "demographics"

type Patient struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Query selects patients by demographics. A nil field is not filtered on; a
// present but empty field still counts as a search term.
type Query struct {
	HospitalNumber *string
	Name           *string
}

func (q Query) Empty() bool {
	return q.HospitalNumber == nil && q.Name == nil
}

// ToDict serialises the patient with one list per patient-level column and
// the already serialised episodes keyed by id.
func (p *Patient) ToDict(coll *record.Collection, columns []schema.Column, episodes map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(columns)+2)
	out["id"] = p.ID.String()
	for _, col := range columns {
		out[col.Name] = coll.PatientDicts(p.ID, col.Name)
	}
	if episodes == nil {
		episodes = map[string]interface{}{}
	}
	out["episodes"] = episodes
	return out
}
