package episode

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/domain/patient"
	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/middleware"
)

// Validator checks request structs.
type Validator interface {
	Validate(i interface{}) error
}

type Handler struct {
	svc       *Service
	validator Validator
}

func NewHandler(svc *Service, v Validator) *Handler {
	return &Handler{svc: svc, validator: v}
}

// RegisterRoutes mounts the legacy API on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/episode", h.List)
	api.POST("/episode", h.Create)
	api.GET("/episode/list/:tag", h.ListByTag)
	api.GET("/episode/list/:tag/:subtag", h.ListByTag)
	api.GET("/episode/:pk", h.Get)
	api.PUT("/episode/:pk", h.Update)
	api.POST("/episode/:pk/copy_to_category/:category", h.CopyToCategory)
	api.PUT("/episode/:pk/tagging", h.SetTags)
	api.GET("/patient/search", h.SearchPatients, middleware.NoCache())
}

func viewer(c echo.Context) uuid.UUID {
	u, _ := auth.UserFromContext(c.Request().Context())
	return u.ID
}

func parsePK(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("pk"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "episode not found")
	}
	return id, nil
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parsePK(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := h.svc.Get(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	d, err := h.svc.ToDict(ctx, e, viewer(c), false)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parsePK(c)
	if err != nil {
		return err
	}
	data, err := record.DecodeBody(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Update(c.Request().Context(), id, data, viewer(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) List(c echo.Context) error {
	dicts, err := h.svc.SerialisedActive(c.Request().Context(), viewer(c), Filter{})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dicts)
}

func (h *Handler) ListByTag(c echo.Context) error {
	u := viewer(c)
	dicts, err := h.svc.SerialisedActive(c.Request().Context(), u, FilterFor(c.Param("tag"), c.Param("subtag"), u))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dicts)
}

func (h *Handler) Create(c echo.Context) error {
	data, err := record.DecodeBody(c)
	if err != nil {
		return err
	}
	req, err := NewAdmitRequest(data)
	if err != nil {
		return errorResponse(c, err)
	}
	if h.validator != nil {
		if err := h.validator.Validate(req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}
	d, err := h.svc.Admit(c.Request().Context(), req, viewer(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) CopyToCategory(c echo.Context) error {
	id, err := parsePK(c)
	if err != nil {
		return err
	}
	d, err := h.svc.CopyToCategory(c.Request().Context(), id, c.Param("category"), viewer(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) SetTags(c echo.Context) error {
	id, err := parsePK(c)
	if err != nil {
		return err
	}
	data, err := record.DecodeBody(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := h.svc.Get(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	u := viewer(c)
	if err := h.svc.SetTagNames(ctx, e.ID, EnabledNames(data), u); err != nil {
		return errorResponse(c, err)
	}
	d, err := h.svc.ToDict(ctx, e, u, false)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, d["tagging"])
}

func (h *Handler) SearchPatients(c echo.Context) error {
	var q patient.Query
	params := c.QueryParams()
	if _, ok := params["hospital_number"]; ok {
		hn := params.Get("hospital_number")
		q.HospitalNumber = &hn
	}
	if _, ok := params["name"]; ok {
		name := params.Get("name")
		q.Name = &name
	}
	dicts, err := h.svc.SearchPatients(c.Request().Context(), q, viewer(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, dicts)
}

func errorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrActiveEpisode), errors.Is(err, patient.ErrNoSearchTerms), errors.Is(err, ErrInvalidField):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return record.ErrorResponse(c, err)
	}
}
