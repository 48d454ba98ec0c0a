package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/domain/account"
	"github.com/ehr/tracker/internal/domain/episode"
	"github.com/ehr/tracker/internal/domain/patient"
	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/domain/team"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/events"
	"github.com/ehr/tracker/internal/platform/metrics"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testConfig() *config.Config {
	return &config.Config{
		Env:              "development",
		BrandName:        "Ward Tracker",
		SessionSecret:    "test-secret",
		SessionTTL:       time.Hour,
		LoginMaxAttempts: 5,
		EventChannel:     "tracker.events",
		BodyLimit:        "1M",
	}
}

func memoryRepos() repos {
	records := record.NewMemoryRepo()
	return repos{
		records:  records,
		teams:    team.NewMemoryRepo(&team.Team{ID: uuid.New(), Name: "general", Title: "General", Active: true}),
		patients: patient.NewMemoryRepo(records),
		episodes: episode.NewMemoryRepo(),
		accounts: account.NewMemoryRepo(),
		tx:       db.NopTransactor{},
	}
}

func newTestApp(t *testing.T) (*app, *echo.Echo) {
	t.Helper()
	a, err := newApp(testConfig(), zerolog.Nop(), memoryRepos(), account.NewMemoryLimiter(5), events.Multi{}, metrics.NewManager())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.revoked.Close)
	a.pinger = fakePinger{}
	return a, a.routes()
}

func do(e *echo.Echo, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// login signs in through the form and returns the session cookie.
func login(t *testing.T, a *app, e *echo.Echo) *http.Cookie {
	t.Helper()
	if _, err := a.accounts.CreateUser(context.Background(), "nurse", "initial-pass"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	form := url.Values{"username": {"nurse"}, "password": {"initial-pass"}}
	req := httptest.NewRequest(http.MethodPost, account.LoginPath, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := do(e, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.DefaultCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login set no session cookie")
	return nil
}

func TestRoutes_Health(t *testing.T) {
	_, e := newTestApp(t)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] != version {
		t.Errorf("expected version %s, got %s", version, body["version"])
	}

	rec = do(e, httptest.NewRequest(http.MethodGet, "/health/db", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected db health 200, got %d", rec.Code)
	}
}

func TestRoutes_AnonymousAccess(t *testing.T) {
	_, e := newTestApp(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"index redirects", "/", http.StatusFound},
		{"api rejects", "/api/v1/episode", http.StatusUnauthorized},
		{"record api rejects", "/api/v1/records/diagnosis/" + uuid.New().String(), http.StatusUnauthorized},
		{"login page", account.LoginPath, http.StatusOK},
		{"banned list", "/accounts/banned", http.StatusOK},
		{"undischarge modal", "/templates/undischarge_modal", http.StatusOK},
		{"discharge modal", "/templates/discharge_episode_modal", http.StatusFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("GET %s: expected %d, got %d", tt.path, tt.status, rec.Code)
			}
		})
	}
}

func TestRoutes_IndexRedirectKeepsNext(t *testing.T) {
	_, e := newTestApp(t)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/", nil))
	if loc := rec.Header().Get("Location"); loc != "/accounts/login?next=%2F" {
		t.Errorf("unexpected redirect %q", loc)
	}
}

func TestRoutes_SecurityHeaders(t *testing.T) {
	_, e := newTestApp(t)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
}

func TestRoutes_AdmitThroughAPI(t *testing.T) {
	a, e := newTestApp(t)
	cookie := login(t, a, e)

	body := `{"demographics": {"hospital_number": "H1", "name": "Ann Smith"}, "tagging": [{"general": true}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/episode", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(e, req, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/v1/episode/list/general", nil), cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 tagged episode, got %d", len(list))
	}

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/v1/patient/search?hospital_number=h1", nil), cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") == "" {
		t.Error("expected search results to be marked uncacheable")
	}

	rec = do(e, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "tracker_episodes_admitted_total 1") {
		t.Errorf("expected admission to be counted, got:\n%s", rec.Body.String())
	}
}

func TestRoutes_ViewsAfterLogin(t *testing.T) {
	a, e := newTestApp(t)
	cookie := login(t, a, e)

	for _, path := range []string{"/", "/templates/episode_list", "/templates/tagging_modal", "/templates/modals/diagnosis"} {
		rec := do(e, httptest.NewRequest(http.MethodGet, path, nil), cookie)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, rec.Code)
		}
	}

	rec := do(e, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	if !strings.Contains(rec.Body.String(), "Ward Tracker") {
		t.Error("expected brand name on index")
	}

	rec = do(e, httptest.NewRequest(http.MethodGet, "/templates/tagging_modal", nil), cookie)
	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected template responses to carry an etag")
	}
	req := httptest.NewRequest(http.MethodGet, "/templates/tagging_modal", nil)
	req.Header.Set("If-None-Match", etag)
	if rec := do(e, req, cookie); rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 on revalidation, got %d", rec.Code)
	}

	rec = do(e, httptest.NewRequest(http.MethodGet, "/api/v1/plugins", nil), cookie)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty plugin list, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestRoutes_APIBodyLimit(t *testing.T) {
	a, e := newTestApp(t)
	cookie := login(t, a, e)

	body := `{"demographics": {"name": "` + strings.Repeat("x", 2<<20) + `"}}`
	for _, chunked := range []bool{false, true} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/episode", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if chunked {
			req.ContentLength = -1
		}
		if rec := do(e, req, cookie); rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("chunked=%v: expected 413, got %d: %.100s", chunked, rec.Code, rec.Body.String())
		}
	}
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	raw := `
columns:
  - model: Antimicrobial
    icon: fa fa-flask
list_schemas:
  tags:
    micro:
      default: [demographics, antimicrobial]
plugins:
  - name: ward
    menu_items:
      - display: Ward
        href: /#/ward
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	columns, plugins, err := loadSchema(path)
	if err != nil {
		t.Fatalf("loadSchema: %v", err)
	}
	if _, ok := columns.Column("antimicrobial"); !ok {
		t.Error("expected antimicrobial column")
	}
	if _, ok := columns.Column("diagnosis"); !ok {
		t.Error("expected built-in columns to remain")
	}
	got := columns.ActiveSchema(nil, "micro", "")
	if len(got) != 2 || got[1].Name != "antimicrobial" {
		t.Errorf("unexpected micro schema %+v", got)
	}
	if len(plugins.Plugins()) != 1 || plugins.Plugins()[0].Name() != "ward" {
		t.Errorf("expected the ward plugin, got %+v", plugins.Plugins())
	}
}

func TestLoadSchema_MissingFile(t *testing.T) {
	if _, _, err := loadSchema(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing schema file")
	}
}

func TestNewLimiter_WithoutRedis(t *testing.T) {
	if _, ok := newLimiter(nil, 3).(*account.MemoryLimiter); !ok {
		t.Error("expected the in-memory limiter when redis is not configured")
	}
}

func TestNewPublisher(t *testing.T) {
	cfg := testConfig()
	if pubs := newPublisher(cfg, zerolog.Nop(), nil).(events.Multi); len(pubs) != 1 {
		t.Errorf("expected only the log publisher, got %d", len(pubs))
	}
	cfg.EventWebhookURL = "http://localhost:9/hook"
	if pubs := newPublisher(cfg, zerolog.Nop(), nil).(events.Multi); len(pubs) != 2 {
		t.Errorf("expected log and webhook publishers, got %d", len(pubs))
	}
}

func TestNewRedis(t *testing.T) {
	rdb, err := newRedis("")
	if err != nil || rdb != nil {
		t.Errorf("expected no client for an empty url, got %v, %v", rdb, err)
	}
	if _, err := newRedis("not a url"); err == nil {
		t.Error("expected error for a malformed url")
	}
	rdb, err = newRedis("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("newRedis: %v", err)
	}
	defer rdb.Close()
	if rdb.Options().DB != 2 {
		t.Errorf("expected db 2, got %d", rdb.Options().DB)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "user": false, "team": false}
	for _, c := range rootCmd().Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing %s command", name)
		}
	}
}
