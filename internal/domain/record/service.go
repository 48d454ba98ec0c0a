package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/schema"
)

var ErrMissingOwner = errors.New("record needs an episode_id or patient_id")

// Notifier is told about every saved change.
type Notifier interface {
	Change(ctx context.Context, pre, post map[string]interface{})
}

// ConflictObserver counts rejected updates.
type ConflictObserver interface {
	ConsistencyConflict(kind string)
}

type Service struct {
	repo     Repository
	columns  *schema.Registry
	notifier Notifier
	observer ConflictObserver
}

func NewService(repo Repository, columns *schema.Registry, notifier Notifier) *Service {
	return &Service{repo: repo, columns: columns, notifier: notifier}
}

func (s *Service) SetConflictObserver(o ConflictObserver) {
	s.observer = o
}

func (s *Service) Column(kind string) (schema.Column, error) {
	col, ok := s.columns.Column(kind)
	if !ok {
		return schema.Column{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return col, nil
}

func (s *Service) Get(ctx context.Context, kind string, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != kind {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Create stores a new record of kind. The owner comes from the episode_id or
// patient_id key, according to the column's level.
func (s *Service) Create(ctx context.Context, kind string, data map[string]interface{}) (*Record, error) {
	col, err := s.Column(kind)
	if err != nil {
		return nil, err
	}
	if col.Single {
		return nil, ErrSingleton
	}
	rec := &Record{Kind: kind, Data: map[string]interface{}{}}
	key := "episode_id"
	if col.Level == schema.LevelPatient {
		key = "patient_id"
	}
	raw, _ := data[key].(string)
	owner, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingOwner, key)
	}
	if col.Level == schema.LevelPatient {
		rec.PatientID = &owner
	} else {
		rec.EpisodeID = &owner
	}

	if err := rec.UpdateFromDict(data, col); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	s.notify(ctx, nil, rec.ToDict())
	return rec, nil
}

// Update applies data to an existing record under the consistency check.
func (s *Service) Update(ctx context.Context, kind string, id uuid.UUID, data map[string]interface{}) (*Record, error) {
	col, err := s.Column(kind)
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, rec, col, data); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) save(ctx context.Context, rec *Record, col schema.Column, data map[string]interface{}) error {
	pre := rec.ToDict()
	old := rec.ConsistencyToken
	if err := rec.UpdateFromDict(data, col); err != nil {
		s.conflict(col.Name, err)
		return err
	}
	if err := s.repo.Update(ctx, rec, old); err != nil {
		s.conflict(col.Name, err)
		return err
	}
	s.notify(ctx, pre, rec.ToDict())
	return nil
}

func (s *Service) Delete(ctx context.Context, kind string, id uuid.UUID) error {
	col, err := s.Column(kind)
	if err != nil {
		return err
	}
	if col.Single {
		return ErrSingleton
	}
	rec, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notify(ctx, rec.ToDict(), nil)
	return nil
}

// CreateSingletons creates the empty singleton records every new episode or
// patient carries.
func (s *Service) CreateSingletons(ctx context.Context, level schema.Level, owner uuid.UUID) error {
	for _, col := range s.columns.ColumnsAt(level) {
		if !col.Single {
			continue
		}
		id := owner
		rec := &Record{Kind: col.Name, Data: map[string]interface{}{}}
		if level == schema.LevelPatient {
			rec.PatientID = &id
		} else {
			rec.EpisodeID = &id
		}
		if err := s.repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("create %s singleton: %w", col.Name, err)
		}
	}
	return nil
}

// Singleton returns the singleton record of kind owned by owner.
func (s *Service) Singleton(ctx context.Context, kind string, owner uuid.UUID) (*Record, error) {
	col, err := s.Column(kind)
	if err != nil {
		return nil, err
	}
	var recs []*Record
	if col.Level == schema.LevelPatient {
		recs, err = s.repo.ListByPatients(ctx, []uuid.UUID{owner})
	} else {
		recs, err = s.repo.ListByEpisodes(ctx, []uuid.UUID{owner})
	}
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.Kind == kind {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateSingleton saves data onto owner's singleton of kind. Used for
// demographics and location on admission.
func (s *Service) UpdateSingleton(ctx context.Context, kind string, owner uuid.UUID, data map[string]interface{}) (*Record, error) {
	col, err := s.Column(kind)
	if err != nil {
		return nil, err
	}
	rec, err := s.Singleton(ctx, kind, owner)
	if err != nil {
		return nil, err
	}
	if _, ok := data["consistency_token"]; !ok && rec.ConsistencyToken != "" {
		copied := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			copied[k] = v
		}
		copied["consistency_token"] = rec.ConsistencyToken
		data = copied
	}
	if err := s.save(ctx, rec, col, data); err != nil {
		return nil, err
	}
	return rec, nil
}

// CopyToEpisode copies every non-singleton episode record from one episode to
// another.
func (s *Service) CopyToEpisode(ctx context.Context, from, to uuid.UUID) error {
	recs, err := s.repo.ListByEpisodes(ctx, []uuid.UUID{from})
	if err != nil {
		return err
	}
	for _, r := range recs {
		col, ok := s.columns.Column(r.Kind)
		if ok && col.Single {
			continue
		}
		if err := s.repo.Create(ctx, r.Copy(to)); err != nil {
			return fmt.Errorf("copy %s: %w", r.Kind, err)
		}
	}
	return nil
}

// Collect loads all records for a set of episodes and patients.
func (s *Service) Collect(ctx context.Context, episodeIDs, patientIDs []uuid.UUID) (*Collection, error) {
	c := newCollection()
	byEpisode, err := s.repo.ListByEpisodes(ctx, episodeIDs)
	if err != nil {
		return nil, fmt.Errorf("list episode records: %w", err)
	}
	for _, r := range byEpisode {
		c.add(r)
	}
	byPatient, err := s.repo.ListByPatients(ctx, patientIDs)
	if err != nil {
		return nil, fmt.Errorf("list patient records: %w", err)
	}
	for _, r := range byPatient {
		c.add(r)
	}
	return c, nil
}

func (s *Service) Columns() *schema.Registry {
	return s.columns
}

type quietKey struct{}

// WithoutNotify returns a context under which saves publish no change
// events. Admission uses it so that only its own admit event goes out, after
// commit.
func WithoutNotify(ctx context.Context) context.Context {
	return context.WithValue(ctx, quietKey{}, true)
}

func (s *Service) notify(ctx context.Context, pre, post map[string]interface{}) {
	if quiet, _ := ctx.Value(quietKey{}).(bool); quiet {
		return
	}
	if s.notifier != nil {
		s.notifier.Change(ctx, pre, post)
	}
}

func (s *Service) conflict(kind string, err error) {
	if s.observer != nil && errors.Is(err, ErrConsistency) {
		s.observer.ConsistencyConflict(kind)
	}
}
