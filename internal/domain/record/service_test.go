package record

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/schema"
)

type changeLog struct {
	pre, post []map[string]interface{}
}

func (c *changeLog) Change(_ context.Context, pre, post map[string]interface{}) {
	c.pre = append(c.pre, pre)
	c.post = append(c.post, post)
}

type conflictCounter map[string]int

func (c conflictCounter) ConsistencyConflict(kind string) { c[kind]++ }

func newTestService(t *testing.T) (*Service, *MemoryRepo, *changeLog) {
	t.Helper()
	f := schema.Builtin()
	reg, err := schema.NewRegistry(f.Columns, f.ListSchemas)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	repo := NewMemoryRepo()
	log := &changeLog{}
	return NewService(repo, reg, log), repo, log
}

func TestService_CreateAndUpdate(t *testing.T) {
	svc, _, log := newTestService(t)
	ctx := context.Background()
	ep := uuid.New()

	rec, err := svc.Create(ctx, "diagnosis", map[string]interface{}{
		"episode_id": ep.String(),
		"condition":  "Pneumonia",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.EpisodeID == nil || *rec.EpisodeID != ep || rec.Data["condition"] != "Pneumonia" {
		t.Errorf("unexpected record %+v", rec)
	}
	if _, ok := rec.Data["episode_id"]; ok {
		t.Error("owner key must not be stored in data")
	}

	updated, err := svc.Update(ctx, "diagnosis", rec.ID, map[string]interface{}{
		"consistency_token": rec.ConsistencyToken,
		"condition":         "CAP",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Data["condition"] != "CAP" {
		t.Errorf("expected update to apply, got %v", updated.Data)
	}
	if len(log.post) != 2 || log.pre[0] != nil || log.pre[1]["condition"] != "Pneumonia" {
		t.Errorf("expected create and update to be announced, got %+v", log)
	}
}

func TestService_UpdateStaleToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	conflicts := conflictCounter{}
	svc.SetConflictObserver(conflicts)
	ctx := context.Background()

	rec, _ := svc.Create(ctx, "todo", map[string]interface{}{"episode_id": uuid.NewString(), "details": "bloods"})
	_, err := svc.Update(ctx, "todo", rec.ID, map[string]interface{}{"consistency_token": "deadbeef"})
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("expected ErrConsistency, got %v", err)
	}
	if conflicts["todo"] != 1 {
		t.Errorf("expected conflict to be counted, got %v", conflicts)
	}
}

func TestService_ConcurrentWriterLoses(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, "todo", map[string]interface{}{"episode_id": uuid.NewString()})
	token := rec.ConsistencyToken

	if _, err := svc.Update(ctx, "todo", rec.ID, map[string]interface{}{"consistency_token": token, "details": "a"}); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if _, err := svc.Update(ctx, "todo", rec.ID, map[string]interface{}{"consistency_token": token, "details": "b"}); !errors.Is(err, ErrConsistency) {
		t.Fatalf("second writer with the same token should conflict, got %v", err)
	}
}

func TestService_CreateErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind string
		data map[string]interface{}
		want error
	}{
		{"unknown kind", "ghost", map[string]interface{}{}, ErrUnknownKind},
		{"singleton", "location", map[string]interface{}{"episode_id": uuid.NewString()}, ErrSingleton},
		{"missing owner", "diagnosis", map[string]interface{}{}, ErrMissingOwner},
		{"patient kind needs patient", "allergies", map[string]interface{}{"episode_id": uuid.NewString()}, ErrMissingOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.kind, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_Delete(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	ep := uuid.New()
	rec, _ := svc.Create(ctx, "general_note", map[string]interface{}{"episode_id": ep.String()})

	if err := svc.Delete(ctx, "diagnosis", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting under the wrong kind should be not found, got %v", err)
	}
	if err := svc.Delete(ctx, "general_note", rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetByID(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected record to be gone")
	}

	if err := svc.CreateSingletons(ctx, schema.LevelEpisode, ep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loc, err := svc.Singleton(ctx, "location", ep)
	if err != nil {
		t.Fatalf("expected location singleton: %v", err)
	}
	if err := svc.Delete(ctx, "location", loc.ID); !errors.Is(err, ErrSingleton) {
		t.Errorf("expected ErrSingleton, got %v", err)
	}
}

func TestService_UpdateSingleton(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	patient := uuid.New()
	if err := svc.CreateSingletons(ctx, schema.LevelPatient, patient); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	demo, err := svc.UpdateSingleton(ctx, "demographics", patient, map[string]interface{}{"name": "Ada", "hospital_number": "H1"})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	// A second server-side save does not need the client's token.
	demo, err = svc.UpdateSingleton(ctx, "demographics", patient, map[string]interface{}{"name": "Ada Lovelace"})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if demo.Data["name"] != "Ada Lovelace" || demo.Data["hospital_number"] != "H1" {
		t.Errorf("unexpected demographics %v", demo.Data)
	}
}

func TestService_WithoutNotify(t *testing.T) {
	svc, _, log := newTestService(t)
	patient := uuid.New()
	quiet := WithoutNotify(context.Background())
	if err := svc.CreateSingletons(quiet, schema.LevelPatient, patient); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.UpdateSingleton(quiet, "demographics", patient, map[string]interface{}{"name": "Ada"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.post) != 0 {
		t.Errorf("expected no change events, got %d", len(log.post))
	}

	if _, err := svc.UpdateSingleton(context.Background(), "demographics", patient, map[string]interface{}{"name": "Ada L"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.post) != 1 {
		t.Errorf("expected one change event, got %d", len(log.post))
	}
}

func TestService_CopyToEpisodeSkipsSingletons(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	_ = svc.CreateSingletons(ctx, schema.LevelEpisode, from)
	_, _ = svc.Create(ctx, "diagnosis", map[string]interface{}{"episode_id": from.String(), "condition": "AKI"})
	_, _ = svc.Create(ctx, "todo", map[string]interface{}{"episode_id": from.String(), "details": "U&E"})

	if err := svc.CopyToEpisode(ctx, from, to); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coll, err := svc.Collect(ctx, []uuid.UUID{to}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := coll.EpisodeDicts(to, "location"); len(got) != 0 {
		t.Errorf("singletons must not be copied, got %v", got)
	}
	diag := coll.EpisodeDicts(to, "diagnosis")
	if len(diag) != 1 || diag[0]["condition"] != "AKI" || diag[0]["episode_id"] != to.String() {
		t.Errorf("unexpected copied diagnosis %v", diag)
	}
	if len(coll.EpisodeDicts(to, "todo")) != 1 {
		t.Error("expected todo to be copied")
	}
}

func TestCollection_EmptyIsNotNil(t *testing.T) {
	c := newCollection()
	if got := c.EpisodeDicts(uuid.New(), "diagnosis"); got == nil {
		t.Error("expected empty slice, got nil")
	}
}
