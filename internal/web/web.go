// Package web serves the HTML templates the browser client loads: the
// episode list and detail views and the modal dialogs.
package web

import (
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/domain/account"
	"github.com/ehr/tracker/internal/domain/episode"
	"github.com/ehr/tracker/internal/domain/schema"
	"github.com/ehr/tracker/internal/domain/team"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/templates"
)

//go:embed templates
var embedded embed.FS

// DefaultTemplates are the built-in templates, used beneath any custom
// template directory.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// Options are the settings the index page shows.
type Options struct {
	BrandName        string
	ExtraApplication string
	Settings         map[string]interface{}
}

type Handler struct {
	set      *templates.Set
	columns  *schema.Registry
	teams    *team.Service
	episodes *episode.Service
	opts     Options
}

func NewHandler(set *templates.Set, columns *schema.Registry, teams *team.Service, episodes *episode.Service, opts Options) *Handler {
	return &Handler{set: set, columns: columns, teams: teams, episodes: episodes, opts: opts}
}

// RegisterRoutes mounts the views. requireLogin redirects anonymous users to
// the login page.
func (h *Handler) RegisterRoutes(e *echo.Echo, requireLogin echo.MiddlewareFunc) {
	e.GET("/", h.Index, requireLogin)

	t := e.Group("/templates")
	t.GET("/episode_list", h.EpisodeList)
	t.GET("/episode_list/:tag", h.EpisodeList)
	t.GET("/episode_list/:tag/:subtag", h.EpisodeList)
	t.GET("/episode_detail/:pk", h.EpisodeDetail)
	t.GET("/tagging_modal", h.TaggingModal)
	t.GET("/add_episode_modal", h.AddEpisodeModal, requireLogin)
	t.GET("/add_episode_modal_without_teams", h.AddEpisodeWithoutTeamsModal, requireLogin)
	t.GET("/modals/:model", h.RecordModal, requireLogin)
	t.GET("/modals/:model/:tag", h.RecordModal, requireLogin)
	t.GET("/modals/:model/:tag/:sub", h.RecordModal, requireLogin)

	t.GET("/hospital_number_modal", h.static("hospital_number_modal.html"), requireLogin)
	t.GET("/reopen_episode_modal", h.static("reopen_episode_modal.html"), requireLogin)
	t.GET("/undischarge_modal", h.static("undischarge_modal.html"))
	t.GET("/discharge_episode_modal", h.static("discharge_episode_modal.html"), requireLogin)
	t.GET("/copy_to_category", h.static("copy_to_category.html"), requireLogin)
	t.GET("/delete_item_confirmation_modal", h.static("delete_item_confirmation_modal.html"), requireLogin)

	e.GET("/accounts/templates/account_detail.html", h.static("accounts/account_detail.html"))
	e.GET("/accounts/banned", h.Banned)
}

func viewer(c echo.Context) uuid.UUID {
	u, _ := auth.UserFromContext(c.Request().Context())
	return u.ID
}

func (h *Handler) static(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.Render(http.StatusOK, name, nil)
	}
}

func (h *Handler) Index(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", map[string]interface{}{
		"brand_name":        h.opts.BrandName,
		"settings":          h.opts.Settings,
		"extra_application": h.opts.ExtraApplication,
	})
}

// EpisodeList renders the list for a tag and subtag. The columns come from
// the tag's list schema, falling back to the global default.
func (h *Handler) EpisodeList(c echo.Context) error {
	ctx := c.Request().Context()
	tag, subtag := c.Param("tag"), c.Param("subtag")

	teams, err := h.teams.ForUser(ctx, viewer(c))
	if err != nil {
		return err
	}
	active := h.columns.ActiveSchema(h.columns.Default(), tag, subtag)
	columns, err := schema.BuildColumnContext(active, h.set, tag, subtag)
	if err != nil {
		return err
	}

	var current interface{}
	if tag != "" {
		t, err := h.teams.GetByName(ctx, tag)
		switch {
		case err == nil:
			current = t
		case !errors.Is(err, team.ErrNotFound):
			return err
		}
	}

	return c.Render(http.StatusOK, "episode_list.html", map[string]interface{}{
		"teams":   teams,
		"columns": columns,
		"team":    current,
		"models":  h.columns.Models(),
	})
}

// EpisodeDetail renders the detail template for the episode's category,
// falling back to the default one.
func (h *Handler) EpisodeDetail(c echo.Context) error {
	id, err := uuid.Parse(c.Param("pk"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}
	e, err := h.episodes.Get(c.Request().Context(), id)
	if errors.Is(err, episode.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}
	if err != nil {
		return err
	}
	name, err := h.set.Select("detail/"+strings.ToLower(e.Category)+".html", "detail/default.html")
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, name, map[string]interface{}{
		"episode": e,
		"models":  h.columns.Models(),
	})
}

func (h *Handler) TaggingModal(c echo.Context) error {
	return h.withTeams(c, "tagging_modal.html")
}

func (h *Handler) AddEpisodeModal(c echo.Context) error {
	return h.withTeams(c, "add_episode_modal.html")
}

func (h *Handler) AddEpisodeWithoutTeamsModal(c echo.Context) error {
	return c.Render(http.StatusOK, "add_episode_modal.html", map[string]interface{}{
		"teams": []*team.Team{},
	})
}

func (h *Handler) withTeams(c echo.Context, name string) error {
	teams, err := h.teams.ForUser(c.Request().Context(), viewer(c))
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, name, map[string]interface{}{"teams": teams})
}

// RecordModal renders the form for a record kind, preferring team and
// sub-team specific forms.
func (h *Handler) RecordModal(c echo.Context) error {
	col, ok := h.columns.Column(c.Param("model"))
	if !ok {
		col, ok = h.columns.Column(schema.CamelToSnake(c.Param("model")))
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown record kind")
	}
	name, err := col.FormTemplate(h.set, c.Param("tag"), c.Param("sub"))
	if errors.Is(err, templates.ErrTemplateDoesNotExist) {
		return echo.NewHTTPError(http.StatusNotFound, "no form for "+col.Name)
	}
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, name, map[string]interface{}{
		"name":   col.Name,
		"title":  col.DisplayTitle(),
		"single": col.Single,
	})
}

func (h *Handler) Banned(c echo.Context) error {
	return c.Render(http.StatusOK, "accounts/banned.html", map[string]interface{}{
		"banned": account.BannedPasswords,
	})
}
