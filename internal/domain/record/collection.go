package record

import "github.com/google/uuid"

// Collection groups records by owner and kind for serialisation.
type Collection struct {
	byEpisode map[uuid.UUID]map[string][]*Record
	byPatient map[uuid.UUID]map[string][]*Record
}

func newCollection() *Collection {
	return &Collection{
		byEpisode: make(map[uuid.UUID]map[string][]*Record),
		byPatient: make(map[uuid.UUID]map[string][]*Record),
	}
}

func (c *Collection) add(r *Record) {
	switch {
	case r.EpisodeID != nil:
		addTo(c.byEpisode, *r.EpisodeID, r)
	case r.PatientID != nil:
		addTo(c.byPatient, *r.PatientID, r)
	}
}

func addTo(m map[uuid.UUID]map[string][]*Record, owner uuid.UUID, r *Record) {
	kinds, ok := m[owner]
	if !ok {
		kinds = make(map[string][]*Record)
		m[owner] = kinds
	}
	kinds[r.Kind] = append(kinds[r.Kind], r)
}

// EpisodeDicts returns the serialised records of kind on an episode. The
// result is never nil so it encodes as [].
func (c *Collection) EpisodeDicts(episodeID uuid.UUID, kind string) []map[string]interface{} {
	return dicts(c.byEpisode[episodeID][kind])
}

func (c *Collection) PatientDicts(patientID uuid.UUID, kind string) []map[string]interface{} {
	return dicts(c.byPatient[patientID][kind])
}

func dicts(recs []*Record) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToDict())
	}
	return out
}
