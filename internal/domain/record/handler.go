package record

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the record API on an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/records/:kind", h.Create)
	api.GET("/records/:kind/:id", h.Get)
	api.PUT("/records/:kind/:id", h.Update)
	api.DELETE("/records/:kind/:id", h.Delete)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.Get(c.Request().Context(), c.Param("kind"), id)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, rec.ToDict())
}

func (h *Handler) Create(c echo.Context) error {
	data, err := DecodeBody(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Create(c.Request().Context(), c.Param("kind"), data)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, rec.ToDict())
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	data, err := DecodeBody(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Update(c.Request().Context(), c.Param("kind"), id, data)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, rec.ToDict())
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), c.Param("kind"), id); err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{})
}

// DecodeBody reads a JSON object from the request. Path parameters are not
// merged in, unlike echo's Bind. Errors raised by the body reader itself,
// such as the body limit's 413, are passed through.
func DecodeBody(c echo.Context) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if err := json.NewDecoder(c.Request().Body).Decode(&data); err != nil && err != io.EOF {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	return data, nil
}

// ErrorResponse maps record errors to the JSON bodies the client expects.
func ErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrConsistency):
		return c.JSON(http.StatusConflict, map[string]string{"error": "Item has changed"})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownKind):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrUnknownField),
		errors.Is(err, ErrSingleton), errors.Is(err, ErrMissingOwner):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
