// Package plugin collects what optional plugins contribute to the client:
// scripts, stylesheets, menu entries and list schemas.
package plugin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/domain/schema"
)

type MenuItem struct {
	Display       string `yaml:"display" json:"display"`
	Href          string `yaml:"href" json:"href"`
	Icon          string `yaml:"icon" json:"icon,omitempty"`
	ActivePattern string `yaml:"activepattern" json:"activepattern,omitempty"`
	Index         *int   `yaml:"index" json:"index,omitempty"`
}

// Plugin is the contract every plugin satisfies.
type Plugin interface {
	Name() string
	ListSchemas() schema.ListSchemas
	// Javascripts maps an angular namespace to script paths.
	Javascripts() map[string][]string
	Stylesheets() []string
	HeadExtra() []string
	MenuItems() []MenuItem
	AngularModuleDeps() []string
}

// Router is implemented by plugins that serve their own endpoints.
type Router interface {
	RegisterRoutes(g *echo.Group)
}

// Static is a Plugin declared as data, typically in the schema file.
type Static struct {
	PluginName  string              `yaml:"name"`
	Schemas     schema.ListSchemas  `yaml:"list_schemas"`
	Scripts     map[string][]string `yaml:"javascripts"`
	Styles      []string            `yaml:"stylesheets"`
	Head        []string            `yaml:"head_extra"`
	Menu        []MenuItem          `yaml:"menu_items"`
	AngularDeps []string            `yaml:"angular_module_deps"`
}

func (s *Static) Name() string { return s.PluginName }
func (s *Static) ListSchemas() schema.ListSchemas { return s.Schemas }
func (s *Static) Javascripts() map[string][]string { return s.Scripts }
func (s *Static) Stylesheets() []string { return s.Styles }
func (s *Static) HeadExtra() []string { return s.Head }
func (s *Static) MenuItems() []MenuItem { return s.Menu }
func (s *Static) AngularModuleDeps() []string { return s.AngularDeps }

// RegisterRoutes serves the plugin's manifest at /plugins/<name>.
func (s *Static) RegisterRoutes(g *echo.Group) {
	g.GET("/plugins/"+s.PluginName, func(c echo.Context) error {
		return c.JSON(http.StatusOK, ManifestOf(s))
	})
}
