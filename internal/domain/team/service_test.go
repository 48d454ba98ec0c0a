package team

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func titles(ts []*Team) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Title)
	}
	return out
}

func TestService_ForUser(t *testing.T) {
	repo := NewMemoryRepo(
		&Team{Name: "mine", Title: "Mine", Active: true, Order: 1},
		&Team{Name: "general", Title: "General", Active: true, Order: 5},
		&Team{Name: "icu", Title: "ICU", Active: true, Order: 5},
		&Team{Name: "hiv", Title: "HIV", Active: true, Restricted: true, Order: 2},
		&Team{Name: "old", Title: "Old", Active: false},
	)
	svc := NewService(repo)
	ctx := context.Background()

	stranger := uuid.New()
	got, err := svc.ForUser(ctx, stranger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"Mine", "General", "ICU"}, titles(got)); diff != "" {
		t.Errorf("ForUser(stranger) mismatch (-want +got):\n%s", diff)
	}

	member := uuid.New()
	if err := svc.AddMember(ctx, "hiv", member); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = svc.ForUser(ctx, member)
	if diff := cmp.Diff([]string{"Mine", "HIV", "General", "ICU"}, titles(got)); diff != "" {
		t.Errorf("ForUser(member) mismatch (-want +got):\n%s", diff)
	}
}

func TestService_ForUserEmpty(t *testing.T) {
	got, err := NewService(NewMemoryRepo()).ForUser(context.Background(), uuid.New())
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v %v", got, err)
	}
}

func TestService_Create(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()

	tests := []struct {
		name    string
		team    Team
		wantErr bool
	}{
		{"valid", Team{Name: "renal", Title: "Renal"}, false},
		{"upper case", Team{Name: "Renal", Title: "Renal"}, true},
		{"spaces", Team{Name: "renal ward", Title: "Renal"}, true},
		{"no title", Team{Name: "renal2"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := tt.team
			err := svc.Create(ctx, &tm)
			if (err != nil) != tt.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	got, err := svc.GetByName(ctx, "renal")
	if err != nil || got.Title != "Renal" {
		t.Errorf("expected renal to be stored, got %+v %v", got, err)
	}
	if _, err := svc.GetByName(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

