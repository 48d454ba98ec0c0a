package episode

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/patient"
	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/domain/schema"
	"github.com/ehr/tracker/internal/domain/team"
	"github.com/ehr/tracker/internal/platform/db"
)

// Location is the episode singleton filled in on admission.
const Location = "location"

// Notifier receives admit and change events.
type Notifier interface {
	Admit(ctx context.Context, post map[string]interface{})
	Change(ctx context.Context, pre, post map[string]interface{})
}

// Observer counts admissions and rejected updates.
type Observer interface {
	EpisodeAdmitted()
	ConsistencyConflict(kind string)
}

type Service struct {
	repo     Repository
	patients *patient.Service
	records  *record.Service
	teams    *team.Service
	tx       db.Transactor
	notifier Notifier
	observer Observer
}

func NewService(repo Repository, patients *patient.Service, records *record.Service, teams *team.Service, tx db.Transactor, notifier Notifier) *Service {
	return &Service{repo: repo, patients: patients, records: records, teams: teams, tx: tx, notifier: notifier}
}

func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Episode, error) {
	return s.repo.GetByID(ctx, id)
}

// ToDict serialises one episode for viewer.
func (s *Service) ToDict(ctx context.Context, e *Episode, viewer uuid.UUID, shallow bool) (map[string]interface{}, error) {
	out, err := s.serialise(ctx, []*Episode{e}, viewer, shallow)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// serialise builds episode dicts with one query per table. A shallow dict
// carries the episode fields and demographics only.
func (s *Service) serialise(ctx context.Context, eps []*Episode, viewer uuid.UUID, shallow bool) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(eps))
	if len(eps) == 0 {
		return out, nil
	}
	episodeIDs := make([]uuid.UUID, 0, len(eps))
	patientIDs := make([]uuid.UUID, 0, len(eps))
	seen := make(map[uuid.UUID]bool, len(eps))
	for _, e := range eps {
		episodeIDs = append(episodeIDs, e.ID)
		if !seen[e.PatientID] {
			seen[e.PatientID] = true
			patientIDs = append(patientIDs, e.PatientID)
		}
	}

	var byEpisodeRecords []uuid.UUID
	if !shallow {
		byEpisodeRecords = episodeIDs
	}
	coll, err := s.records.Collect(ctx, byEpisodeRecords, patientIDs)
	if err != nil {
		return nil, err
	}

	tags := map[uuid.UUID][]Tagging{}
	if !shallow {
		all, err := s.repo.Taggings(ctx, episodeIDs)
		if err != nil {
			return nil, fmt.Errorf("list taggings: %w", err)
		}
		for _, t := range all {
			tags[t.EpisodeID] = append(tags[t.EpisodeID], t)
		}
	}

	columns := s.records.Columns().Columns()
	for _, e := range eps {
		d := e.fieldDict()
		d[patient.Demographics] = coll.PatientDicts(e.PatientID, patient.Demographics)
		if !shallow {
			for _, col := range columns {
				if col.Level == schema.LevelPatient {
					d[col.Name] = coll.PatientDicts(e.PatientID, col.Name)
				} else {
					d[col.Name] = coll.EpisodeDicts(e.ID, col.Name)
				}
			}
			d["tagging"] = []map[string]interface{}{tagDict(tags[e.ID], viewer)}
		}
		out = append(out, d)
	}
	return out, nil
}

// Update applies data under the consistency check, publishes the change and
// returns the shallow dict.
func (s *Service) Update(ctx context.Context, id uuid.UUID, data map[string]interface{}, viewer uuid.UUID) (map[string]interface{}, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	pre, err := s.ToDict(ctx, e, viewer, false)
	if err != nil {
		return nil, err
	}
	old := e.ConsistencyToken
	if err := e.UpdateFromDict(data); err != nil {
		s.conflict(err)
		return nil, err
	}
	if err := s.repo.Update(ctx, e, old); err != nil {
		s.conflict(err)
		return nil, err
	}
	post, err := s.ToDict(ctx, e, viewer, false)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Change(ctx, pre, post)
	}
	return s.ToDict(ctx, e, viewer, true)
}

// CreateForPatient opens a new active episode with its singleton records.
func (s *Service) CreateForPatient(ctx context.Context, patientID uuid.UUID) (*Episode, error) {
	active, err := s.repo.HasActive(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("check active episode: %w", err)
	}
	if active {
		return nil, ErrActiveEpisode
	}
	return s.create(ctx, &Episode{PatientID: patientID, Category: DefaultCategory, Active: true})
}

func (s *Service) create(ctx context.Context, e *Episode) (*Episode, error) {
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create episode: %w", err)
	}
	if err := s.records.CreateSingletons(ctx, schema.LevelEpisode, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// Admit finds or creates the patient, opens an episode and fills in its
// location and tags in one transaction, then publishes an admit event. The
// record saves inside the transaction publish nothing.
func (s *Service) Admit(ctx context.Context, req *AdmitRequest, viewer uuid.UUID) (map[string]interface{}, error) {
	var e *Episode
	err := s.tx.WithTx(record.WithoutNotify(ctx), func(ctx context.Context) error {
		hospitalNumber, _ := req.Demographics["hospital_number"].(string)
		p, _, err := s.patients.GetOrCreateByHospitalNumber(ctx, hospitalNumber)
		if err != nil {
			return err
		}
		if _, err := s.patients.UpdateDemographics(ctx, p.ID, req.Demographics); err != nil {
			return fmt.Errorf("update demographics: %w", err)
		}

		e, err = s.CreateForPatient(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(req.Fields) > 0 {
			old := e.ConsistencyToken
			if err := e.UpdateFromDict(req.Fields); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, e, old); err != nil {
				return err
			}
		}
		if req.Location != nil {
			if _, err := s.records.UpdateSingleton(ctx, Location, e.ID, req.Location); err != nil {
				return fmt.Errorf("update location: %w", err)
			}
		}
		if len(req.Tags) > 0 {
			return s.SetTagNames(ctx, e.ID, req.Tags, viewer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.admitted(ctx, e, viewer)
}

func (s *Service) admitted(ctx context.Context, e *Episode, viewer uuid.UUID) (map[string]interface{}, error) {
	d, err := s.ToDict(ctx, e, viewer, false)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Admit(ctx, d)
	}
	if s.observer != nil {
		s.observer.EpisodeAdmitted()
	}
	return d, nil
}

// SetTagNames makes names the episode's tags. Only teams viewer may use are
// added or removed; tags on restricted teams viewer is not a member of are
// left alone, as are other users' mine tags. Names that match no usable team
// are ignored.
func (s *Service) SetTagNames(ctx context.Context, episodeID uuid.UUID, names []string, viewer uuid.UUID) error {
	current, err := s.repo.Taggings(ctx, []uuid.UUID{episodeID})
	if err != nil {
		return fmt.Errorf("list taggings: %w", err)
	}
	usable, err := s.teams.ForUser(ctx, viewer)
	if err != nil {
		return fmt.Errorf("resolve teams: %w", err)
	}
	requested := make(map[string]bool, len(names))
	for _, n := range names {
		requested[n] = true
	}
	visible := make(map[uuid.UUID]bool, len(usable))
	wanted := make(map[uuid.UUID]bool, len(names))
	var teams []*team.Team
	for _, t := range usable {
		visible[t.ID] = true
		if requested[t.Name] {
			wanted[t.ID] = true
			teams = append(teams, t)
		}
	}

	for _, t := range current {
		if t.UserID != nil && *t.UserID != viewer {
			continue
		}
		if !visible[t.TeamID] || wanted[t.TeamID] {
			continue
		}
		if err := s.repo.RemoveTagging(ctx, t); err != nil {
			return fmt.Errorf("remove tag %s: %w", t.TeamName, err)
		}
	}
	for _, t := range teams {
		tagging := Tagging{EpisodeID: episodeID, TeamID: t.ID, TeamName: t.Name}
		if t.Name == team.Mine {
			user := viewer
			tagging.UserID = &user
		}
		if err := s.repo.AddTagging(ctx, tagging); err != nil {
			return fmt.Errorf("add tag %s: %w", t.Name, err)
		}
	}
	return nil
}

// FilterFor builds the list filter for /episode/list/:tag/:subtag. The
// subtag wins over the tag; the mine tag is narrowed to viewer.
func FilterFor(tag, subtag string, viewer uuid.UUID) Filter {
	f := Filter{Team: tag}
	if subtag != "" {
		f.Team = subtag
	}
	if tag == team.Mine {
		f.UserID = &viewer
	}
	return f
}

// SerialisedActive returns the full dicts of active episodes matching f.
func (s *Service) SerialisedActive(ctx context.Context, viewer uuid.UUID, f Filter) ([]map[string]interface{}, error) {
	eps, err := s.repo.ListActive(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list active episodes: %w", err)
	}
	return s.serialise(ctx, eps, viewer, false)
}

// CopyToCategory opens a new episode for the same patient and admission date
// in category, copying the non-singleton episode records but not the tags.
func (s *Service) CopyToCategory(ctx context.Context, id uuid.UUID, category string, viewer uuid.UUID) (map[string]interface{}, error) {
	var next *Episode
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		next, err = s.create(ctx, &Episode{
			PatientID:       old.PatientID,
			Category:        category,
			Active:          true,
			DateOfAdmission: old.DateOfAdmission,
		})
		if err != nil {
			return err
		}
		return s.records.CopyToEpisode(ctx, old.ID, next.ID)
	})
	if err != nil {
		return nil, err
	}
	return s.admitted(ctx, next, viewer)
}

// SearchPatients returns patient dicts, each with its episodes serialised.
func (s *Service) SearchPatients(ctx context.Context, q patient.Query, viewer uuid.UUID) ([]map[string]interface{}, error) {
	patients, err := s.patients.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(patients))
	if len(patients) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(patients))
	for _, p := range patients {
		ids = append(ids, p.ID)
	}
	eps, err := s.repo.ListByPatients(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	dicts, err := s.serialise(ctx, eps, viewer, false)
	if err != nil {
		return nil, err
	}
	byPatient := make(map[uuid.UUID]map[string]interface{}, len(patients))
	for i, e := range eps {
		if byPatient[e.PatientID] == nil {
			byPatient[e.PatientID] = map[string]interface{}{}
		}
		byPatient[e.PatientID][e.ID.String()] = dicts[i]
	}

	coll, err := s.records.Collect(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	columns := s.patients.Columns()
	for _, p := range patients {
		out = append(out, p.ToDict(coll, columns, byPatient[p.ID]))
	}
	return out, nil
}

func (s *Service) conflict(err error) {
	if s.observer != nil && errors.Is(err, record.ErrConsistency) {
		s.observer.ConsistencyConflict("episode")
	}
}
