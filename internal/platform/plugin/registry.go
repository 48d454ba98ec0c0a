package plugin

import (
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/domain/schema"
)

// Stylesheet is a plugin stylesheet with the MIME type the client loads it as.
type Stylesheet struct {
	Path string `json:"path"`
	MIME string `json:"mime"`
}

// TrackingExclude lists paths the client's analytics must not report.
type TrackingExclude struct {
	Prefixes     []string `json:"excluded_tracking_prefix"`
	QueryStrings []string `json:"excluded_tracking_qs"`
}

// Registry holds registered plugins in registration order.
type Registry struct {
	plugins []Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{}
	for _, p := range plugins {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
}

func (r *Registry) Plugins() []Plugin {
	return r.plugins
}

// Manifest is what one plugin contributes to the client.
type Manifest struct {
	Name        string              `json:"name"`
	Javascripts map[string][]string `json:"javascripts"`
	Stylesheets []string            `json:"stylesheets"`
	HeadExtra   []string            `json:"head_extra"`
	MenuItems   []MenuItem          `json:"menu_items"`
	AngularDeps []string            `json:"angular_module_deps"`
}

func ManifestOf(p Plugin) Manifest {
	m := Manifest{
		Name:        p.Name(),
		Javascripts: map[string][]string{},
		Stylesheets: append([]string{}, p.Stylesheets()...),
		HeadExtra:   append([]string{}, p.HeadExtra()...),
		MenuItems:   SortMenuItems(p.MenuItems()),
		AngularDeps: append([]string{}, p.AngularModuleDeps()...),
	}
	for ns, paths := range p.Javascripts() {
		m.Javascripts[ns] = paths
	}
	return m
}

// RegisterRoutes lists the registered plugins at /plugins and mounts the
// endpoints of every plugin that has any.
func (r *Registry) RegisterRoutes(g *echo.Group) {
	g.GET("/plugins", func(c echo.Context) error {
		out := make([]Manifest, 0, len(r.plugins))
		for _, p := range r.plugins {
			out = append(out, ManifestOf(p))
		}
		return c.JSON(http.StatusOK, out)
	})
	for _, p := range r.plugins {
		if rt, ok := p.(Router); ok {
			rt.RegisterRoutes(g)
		}
	}
}

// ListSchemas returns each plugin's list schemas, in registration order.
func (r *Registry) ListSchemas() []schema.ListSchemas {
	out := make([]schema.ListSchemas, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p.ListSchemas())
	}
	return out
}

func (r *Registry) Javascripts(namespace string) []string {
	var out []string
	for _, p := range r.plugins {
		out = append(out, p.Javascripts()[namespace]...)
	}
	return out
}

func (r *Registry) Stylesheets() []Stylesheet {
	var out []Stylesheet
	for _, p := range r.plugins {
		for _, path := range p.Stylesheets() {
			mime := "text/css"
			if strings.HasSuffix(path, ".scss") {
				mime = "text/x-scss"
			}
			out = append(out, Stylesheet{Path: path, MIME: mime})
		}
	}
	return out
}

func (r *Registry) HeadExtra() []string {
	var out []string
	for _, p := range r.plugins {
		out = append(out, p.HeadExtra()...)
	}
	return out
}

func (r *Registry) AngularDeps() []string {
	var out []string
	for _, p := range r.plugins {
		out = append(out, p.AngularModuleDeps()...)
	}
	return out
}

func (r *Registry) MenuItems() []MenuItem {
	var items []MenuItem
	for _, p := range r.plugins {
		items = append(items, p.MenuItems()...)
	}
	return SortMenuItems(items)
}

// SortMenuItems orders items by Index ascending. Items without an index go
// last; ties keep their original order.
func SortMenuItems(items []MenuItem) []MenuItem {
	out := make([]MenuItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Index, out[j].Index
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}

func (r *Registry) TrackingExclude() TrackingExclude {
	return TrackingExclude{
		Prefixes:     []string{},
		QueryStrings: []string{"/search", "/extract"},
	}
}

// FuncMap exposes the registry to templates.
func (r *Registry) FuncMap() template.FuncMap {
	return template.FuncMap{
		"pluginJavascripts":     r.Javascripts,
		"pluginStylesheets":     r.Stylesheets,
		"pluginHeadExtra":       r.HeadExtra,
		"pluginMenuItems":       r.MenuItems,
		"pluginAngularDeps":     r.AngularDeps,
		"pluginTrackingExclude": r.TrackingExclude,
	}
}
