package patient

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/domain/schema"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	f := schema.Builtin()
	reg, err := schema.NewRegistry(f.Columns, f.ListSchemas)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	recRepo := record.NewMemoryRepo()
	records := record.NewService(recRepo, reg, nil)
	return NewService(NewMemoryRepo(recRepo), records)
}

func addPatient(t *testing.T, svc *Service, demographics map[string]interface{}) *Patient {
	t.Helper()
	ctx := context.Background()
	p, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.UpdateDemographics(ctx, p.ID, demographics); err != nil {
		t.Fatalf("demographics: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }

func TestService_CreateMakesDemographics(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := svc.records.Singleton(ctx, Demographics, p.ID)
	if err != nil {
		t.Fatalf("expected demographics singleton: %v", err)
	}
	if rec.PatientID == nil || *rec.PatientID != p.ID {
		t.Errorf("demographics not owned by patient: %+v", rec)
	}
}

func TestService_GetOrCreateByHospitalNumber(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	existing := addPatient(t, svc, map[string]interface{}{"hospital_number": "AB123"})

	got, created, err := svc.GetOrCreateByHospitalNumber(ctx, "ab123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || got.ID != existing.ID {
		t.Errorf("expected existing patient, got %v created=%v", got.ID, created)
	}

	fresh, created, err := svc.GetOrCreateByHospitalNumber(ctx, "ZZ999")
	if err != nil || !created || fresh.ID == existing.ID {
		t.Errorf("expected a new patient, got %v created=%v err=%v", fresh, created, err)
	}

	blank, created, err := svc.GetOrCreateByHospitalNumber(ctx, "")
	if err != nil || !created || blank.ID == existing.ID {
		t.Errorf("empty hospital number must create, got created=%v err=%v", created, err)
	}
}

func TestService_Search(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	younger := addPatient(t, svc, map[string]interface{}{"hospital_number": "1", "name": "Jane Smith", "date_of_birth": "1990-01-01"})
	older := addPatient(t, svc, map[string]interface{}{"hospital_number": "2", "name": "John Smith", "date_of_birth": "1950-06-01"})
	addPatient(t, svc, map[string]interface{}{"hospital_number": "3", "name": "Ann Jones"})

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"name contains, ordered by dob", Query{Name: strPtr("smith")}, []string{older.ID.String(), younger.ID.String()}},
		{"hospital number exact", Query{HospitalNumber: strPtr("1")}, []string{younger.ID.String()}},
		{"both terms", Query{HospitalNumber: strPtr("2"), Name: strPtr("jane")}, []string{}},
		{"no match", Query{Name: strPtr("nobody")}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Search(ctx, tt.q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ids := []string{}
			for _, p := range got {
				ids = append(ids, p.ID.String())
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("search mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestService_SearchNeedsTerms(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Search(context.Background(), Query{}); !errors.Is(err, ErrNoSearchTerms) {
		t.Errorf("expected ErrNoSearchTerms, got %v", err)
	}
}

func TestPatient_ToDict(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := addPatient(t, svc, map[string]interface{}{"hospital_number": "X1"})

	coll, err := svc.records.Collect(ctx, nil, []uuid.UUID{p.ID})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	d := p.ToDict(coll, svc.Columns(), nil)
	if d["id"] != p.ID.String() {
		t.Errorf("unexpected id %v", d["id"])
	}
	demo, ok := d["demographics"].([]map[string]interface{})
	if !ok || len(demo) != 1 || demo[0]["hospital_number"] != "X1" {
		t.Errorf("unexpected demographics %v", d["demographics"])
	}
	if allergies, ok := d["allergies"].([]map[string]interface{}); !ok || len(allergies) != 0 {
		t.Errorf("expected empty allergies list, got %v", d["allergies"])
	}
	if eps, ok := d["episodes"].(map[string]interface{}); !ok || len(eps) != 0 {
		t.Errorf("expected empty episodes map, got %v", d["episodes"])
	}
}
