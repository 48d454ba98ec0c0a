package episode

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/validate"
)

func newTestServer(t *testing.T) (*fixture, *echo.Echo, uuid.UUID) {
	t.Helper()
	f := newFixture(t)
	e := echo.New()
	api := e.Group("/api/v1", auth.RequireAPILogin())
	NewHandler(f.svc, validate.New()).RegisterRoutes(api)
	return f, e, uuid.New()
}

func do(e *echo.Echo, user uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != uuid.Nil {
		req = req.WithContext(auth.WithUser(req.Context(), auth.User{ID: user, Username: "nurse"}))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

const admitJSON = `{
	"demographics": {"hospital_number": "J1", "name": "John Doe"},
	"location": {"ward": "7S"},
	"category": "inpatient",
	"tagging": [{"general": true}]
}`

func TestHandler_RequiresLogin(t *testing.T) {
	_, e, _ := newTestServer(t)
	rec := do(e, uuid.Nil, http.MethodGet, "/api/v1/episode", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_CreateGetUpdate(t *testing.T) {
	_, e, me := newTestServer(t)

	rec := do(e, me, http.MethodPost, "/api/v1/episode", admitJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created map[string]interface{}
	decode(t, rec, &created)
	id := created["id"].(string)

	rec = do(e, me, http.MethodPost, "/api/v1/episode", admitJSON)
	if rec.Code != http.StatusBadRequest || strings.TrimSpace(rec.Body.String()) != `{"error":"Patient already has active episode"}` {
		t.Errorf("expected active episode error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, me, http.MethodGet, "/api/v1/episode/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]interface{}
	decode(t, rec, &got)
	if got["consistency_token"] != created["consistency_token"] {
		t.Errorf("expected stable token, got %v", got["consistency_token"])
	}

	body := `{"consistency_token":"` + created["consistency_token"].(string) + `","category":"outpatient"}`
	rec = do(e, me, http.MethodPut, "/api/v1/episode/"+id, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var shallow map[string]interface{}
	decode(t, rec, &shallow)
	if shallow["category"] != "outpatient" {
		t.Errorf("unexpected update response %v", shallow)
	}

	rec = do(e, me, http.MethodPut, "/api/v1/episode/"+id, body)
	if rec.Code != http.StatusConflict || strings.TrimSpace(rec.Body.String()) != `{"error":"Item has changed"}` {
		t.Errorf("expected 409 conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_NotFound(t *testing.T) {
	_, e, me := newTestServer(t)
	for _, path := range []string{"/api/v1/episode/" + uuid.NewString(), "/api/v1/episode/not-a-uuid"} {
		if rec := do(e, me, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, rec.Code)
		}
	}
	rec := do(e, me, http.MethodPost, "/api/v1/episode/"+uuid.NewString()+"/copy_to_category/outpatient", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("copy of missing episode: expected 404, got %d", rec.Code)
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	_, e, me := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing demographics", `{"category":"inpatient"}`},
		{"bad admission date", `{"demographics":{},"date_of_admission":"yesterday"}`},
		{"long category", `{"demographics":{},"category":"` + strings.Repeat("x", 201) + `"}`},
		{"unknown demographics field", `{"demographics":{"shoe_size":9}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, me, http.MethodPost, "/api/v1/episode", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ListAndTagging(t *testing.T) {
	_, e, me := newTestServer(t)
	rec := do(e, me, http.MethodPost, "/api/v1/episode", admitJSON)
	var created map[string]interface{}
	decode(t, rec, &created)
	id := created["id"].(string)

	count := func(path string) int {
		t.Helper()
		rec := do(e, me, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", path, rec.Code)
		}
		var list []map[string]interface{}
		decode(t, rec, &list)
		return len(list)
	}
	if n := count("/api/v1/episode"); n != 1 {
		t.Errorf("expected 1 active episode, got %d", n)
	}
	if n := count("/api/v1/episode/list/general"); n != 1 {
		t.Errorf("expected 1 general episode, got %d", n)
	}
	if n := count("/api/v1/episode/list/mine"); n != 0 {
		t.Errorf("expected no mine episodes, got %d", n)
	}

	rec = do(e, me, http.MethodPut, "/api/v1/episode/"+id+"/tagging", `{"mine":true,"general":false}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `[{"mine":true}]` {
		t.Errorf("unexpected tagging response %s", rec.Body.String())
	}
	if n := count("/api/v1/episode/list/mine"); n != 1 {
		t.Errorf("expected 1 mine episode, got %d", n)
	}
	if n := count("/api/v1/episode/list/general"); n != 0 {
		t.Errorf("expected 0 general episodes, got %d", n)
	}
}

func TestHandler_PatientSearch(t *testing.T) {
	_, e, me := newTestServer(t)
	do(e, me, http.MethodPost, "/api/v1/episode", admitJSON)

	rec := do(e, me, http.MethodGet, "/api/v1/patient/search", "")
	if rec.Code != http.StatusBadRequest || strings.TrimSpace(rec.Body.String()) != `{"error":"No search terms"}` {
		t.Errorf("expected no search terms error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, me, http.MethodGet, "/api/v1/patient/search?name=john", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("expected no-cache headers, got %q", cc)
	}
	var patients []map[string]interface{}
	decode(t, rec, &patients)
	if len(patients) != 1 {
		t.Fatalf("expected one patient, got %d", len(patients))
	}
	if eps := patients[0]["episodes"].(map[string]interface{}); len(eps) != 1 {
		t.Errorf("expected one episode, got %v", eps)
	}
}

func TestHandler_CopyToCategory(t *testing.T) {
	_, e, me := newTestServer(t)
	rec := do(e, me, http.MethodPost, "/api/v1/episode", admitJSON)
	var created map[string]interface{}
	decode(t, rec, &created)

	rec = do(e, me, http.MethodPost, "/api/v1/episode/"+created["id"].(string)+"/copy_to_category/outpatient", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var copied map[string]interface{}
	decode(t, rec, &copied)
	if copied["category"] != "outpatient" || copied["patient_id"] != created["patient_id"] {
		t.Errorf("unexpected copy %v", copied)
	}
}
