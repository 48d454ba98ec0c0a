package record

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/ehr/tracker/internal/domain/schema"
)

func TestNewToken(t *testing.T) {
	a, b := NewToken(), NewToken()
	if len(a) != 8 || len(b) != 8 {
		t.Fatalf("expected 8 char tokens, got %q %q", a, b)
	}
	if a == b {
		t.Error("expected distinct tokens")
	}
}

func TestCheckToken(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		data   map[string]interface{}
		want   error
	}{
		{"never saved accepts missing token", "", map[string]interface{}{}, nil},
		{"never saved ignores supplied token", "", map[string]interface{}{"consistency_token": "zzz"}, nil},
		{"matching token", "abcd1234", map[string]interface{}{"consistency_token": "abcd1234"}, nil},
		{"missing token", "abcd1234", map[string]interface{}{"name": "x"}, ErrMissingToken},
		{"stale token", "abcd1234", map[string]interface{}{"consistency_token": "00000000"}, ErrConsistency},
		{"non-string token", "abcd1234", map[string]interface{}{"consistency_token": 5}, ErrConsistency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := CheckToken(tt.stored, tt.data); !errors.Is(err, tt.want) {
				t.Errorf("CheckToken() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecord_UpdateFromDict(t *testing.T) {
	col := schema.Column{Name: "location", Fields: []string{"ward", "bed"}}
	r := &Record{Kind: "location", Data: map[string]interface{}{"ward": "A"}}

	if err := r.UpdateFromDict(map[string]interface{}{"bed": "12", "id": "ignored", "created": "x"}, col); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]interface{}{"ward": "A", "bed": "12"}
	if diff := cmp.Diff(want, r.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	first := r.ConsistencyToken
	if len(first) != 8 {
		t.Fatalf("expected a token to be issued, got %q", first)
	}

	err := r.UpdateFromDict(map[string]interface{}{"bed": "13"}, col)
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
	err = r.UpdateFromDict(map[string]interface{}{"consistency_token": first, "colour": "red"}, col)
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if r.Data["bed"] != "12" || r.ConsistencyToken != first {
		t.Error("failed updates must leave the record untouched")
	}

	if err := r.UpdateFromDict(map[string]interface{}{"consistency_token": first, "bed": "<b>14</b>"}, col); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Data["bed"] != "14" {
		t.Errorf("expected markup stripped, got %v", r.Data["bed"])
	}
	if r.ConsistencyToken == first {
		t.Error("expected a fresh token after update")
	}
}

func TestRecord_ToDict(t *testing.T) {
	ep := uuid.New()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Record{
		ID:               uuid.New(),
		Kind:             "diagnosis",
		EpisodeID:        &ep,
		Data:             map[string]interface{}{"condition": "Sepsis"},
		ConsistencyToken: "0a1b2c3d",
		CreatedAt:        created,
	}
	want := map[string]interface{}{
		"condition":         "Sepsis",
		"id":                r.ID.String(),
		"consistency_token": "0a1b2c3d",
		"episode_id":        ep.String(),
		"created":           "2024-01-02T03:04:05Z",
		"updated":           nil,
	}
	if diff := cmp.Diff(want, r.ToDict()); diff != "" {
		t.Errorf("ToDict mismatch (-want +got):\n%s", diff)
	}
}

func TestSanitize(t *testing.T) {
	in := map[string]interface{}{
		"plain":  "Tom & Jerry",
		"markup": `<script>alert(1)</script>fever <i>high</i>`,
		"nested": []interface{}{"<b>x</b>", 3.0, map[string]interface{}{"y": "<p>z</p>"}},
		"num":    7.0,
		"amp":    "<i>R&amp;D</i>",
		"coded":  "<b>&lt;script&gt;alert(1)&lt;/script&gt;</b>",
	}
	want := map[string]interface{}{
		"plain":  "Tom & Jerry",
		"markup": "fever high",
		"nested": []interface{}{"x", 3.0, map[string]interface{}{"y": "z"}},
		"num":    7.0,
		"amp":    "R&D",
		"coded":  "&lt;script&gt;alert(1)&lt;/script&gt;",
	}
	if diff := cmp.Diff(want, Sanitize(in)); diff != "" {
		t.Errorf("Sanitize mismatch (-want +got):\n%s", diff)
	}
}
