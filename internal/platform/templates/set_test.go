package templates

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
)

func testLayers() (fstest.MapFS, fstest.MapFS) {
	custom := fstest.MapFS{
		"records/diagnosis.html": {Data: []byte(`custom {{.}}`)},
	}
	defaults := fstest.MapFS{
		"records/diagnosis.html": {Data: []byte(`default {{.}}`)},
		"records/location.html":  {Data: []byte(`location`)},
		"episode_list.html":      {Data: []byte(`list {{template "records/location.html" .}}`)},
		"readme.txt":             {Data: []byte(`ignored`)},
	}
	return custom, defaults
}

func TestNew_EarlierLayerWins(t *testing.T) {
	custom, defaults := testLayers()
	s, err := New(nil, custom, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Render(&buf, "records/diagnosis.html", "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "custom x" {
		t.Errorf("expected custom layer, got %q", buf.String())
	}

	want := []string{"episode_list.html", "records/diagnosis.html", "records/location.html"}
	if diff := cmp.Diff(want, s.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_Select(t *testing.T) {
	_, defaults := testLayers()
	s, err := New(nil, defaults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		names   []string
		want    string
		wantErr bool
	}{
		{"first exists", []string{"records/location.html", "records/diagnosis.html"}, "records/location.html", false},
		{"falls through", []string{"records/inpatient/location.html", "records/location.html"}, "records/location.html", false},
		{"none exist", []string{"a.html", "b.html"}, "", true},
		{"no candidates", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Select(tt.names...)
			if tt.wantErr {
				if !errors.Is(err, ErrTemplateDoesNotExist) {
					t.Errorf("expected ErrTemplateDoesNotExist, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSet_RenderIncludesAndMissing(t *testing.T) {
	_, defaults := testLayers()
	s, _ := New(nil, defaults)

	var buf bytes.Buffer
	if err := s.Render(&buf, "episode_list.html", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "list location" {
		t.Errorf("unexpected output %q", buf.String())
	}

	if err := s.Render(&buf, "nope.html", nil); !errors.Is(err, ErrTemplateDoesNotExist) {
		t.Errorf("expected ErrTemplateDoesNotExist, got %v", err)
	}
}

func TestNew_ParseError(t *testing.T) {
	bad := fstest.MapFS{"broken.html": {Data: []byte(`{{ .Foo `)}}
	if _, err := New(nil, bad); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFuncs(t *testing.T) {
	fsys := fstest.MapFS{
		"a.html": {Data: []byte(`<script>var x = {{json .}};</script>{{with dict "k" "v"}}{{.k}}{{end}}{{shout}}`)},
	}
	s, err := New(template.FuncMap{"shout": func() string { return "!" }}, fsys)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	if err := s.Render(&buf, "a.html", map[string]int{"n": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `{"n":1}`) {
		t.Errorf("expected JSON in script, got %q", out)
	}
	if !strings.HasSuffix(out, "v!") {
		t.Errorf("expected dict and custom func output, got %q", out)
	}
}

func TestSet_IncludeComputedPath(t *testing.T) {
	s, err := New(nil, fstest.MapFS{
		"list.html":              {Data: []byte(`{{range .}}[{{include .path .}}]{{end}}`)},
		"records/diagnosis.html": {Data: []byte(`dx {{.name}}`)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	data := []map[string]string{{"path": "records/diagnosis.html", "name": "<b>"}}
	if err := s.Render(&buf, "list.html", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "[dx &lt;b&gt;]" {
		t.Errorf("unexpected output %q", buf.String())
	}

	data[0]["path"] = "records/missing.html"
	if err := s.Render(&buf, "list.html", data); !errors.Is(err, ErrTemplateDoesNotExist) {
		t.Errorf("expected ErrTemplateDoesNotExist, got %v", err)
	}
}

func TestRenderer_Echo(t *testing.T) {
	_, defaults := testLayers()
	s, _ := New(nil, defaults)

	e := echo.New()
	e.Renderer = &Renderer{Set: s}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := c.Render(http.StatusOK, "records/location.html", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "location" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
