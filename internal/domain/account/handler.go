package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/auth"
)

const (
	LoginPath          = "/accounts/login"
	PasswordChangePath = "/accounts/password_change"
)

// Validator checks form structs.
type Validator interface {
	Validate(i interface{}) error
}

type LoginForm struct {
	Username string `validate:"required,max=150"`
	Password string `validate:"required"`
	Next     string
}

type PasswordChangeForm struct {
	OldPassword  string `validate:"required"`
	NewPassword1 string `validate:"required,min=8,max=128"`
	NewPassword2 string `validate:"required,eqfield=NewPassword1"`
}

type Handler struct {
	svc       *Service
	sessions  *auth.Sessions
	validator Validator
}

func NewHandler(svc *Service, sessions *auth.Sessions, v Validator) *Handler {
	return &Handler{svc: svc, sessions: sessions, validator: v}
}

// RegisterRoutes mounts the account pages. requireLogin guards the password
// change form.
func (h *Handler) RegisterRoutes(e *echo.Echo, requireLogin echo.MiddlewareFunc) {
	g := e.Group("/accounts")
	g.GET("/login", h.LoginForm)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/password_change", h.PasswordChangeForm, requireLogin)
	g.POST("/password_change", h.PasswordChange, requireLogin)
}

func (h *Handler) LoginForm(c echo.Context) error {
	return c.Render(http.StatusOK, "accounts/login.html", map[string]interface{}{
		"next":  c.QueryParam("next"),
		"error": "",
	})
}

// Login authenticates the form, sets the session cookie and sends users
// that must change their password to the password change form.
func (h *Handler) Login(c echo.Context) error {
	form := LoginForm{
		Username: c.FormValue("username"),
		Password: c.FormValue("password"),
		Next:     c.FormValue("next"),
	}
	renderErr := func(status int, msg string) error {
		return c.Render(status, "accounts/login.html", map[string]interface{}{
			"next":     form.Next,
			"username": form.Username,
			"error":    msg,
		})
	}
	if err := h.validator.Validate(form); err != nil {
		return renderErr(http.StatusOK, err.Error())
	}

	ctx := c.Request().Context()
	u, err := h.svc.Authenticate(ctx, form.Username, form.Password)
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		return renderErr(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return renderErr(http.StatusOK, err.Error())
	case err != nil:
		return err
	}

	if err := h.sessions.Login(c, auth.User{ID: u.ID, Username: u.Username}); err != nil {
		return err
	}
	force, err := h.svc.NeedsPasswordChange(ctx, u.ID)
	if err != nil {
		return err
	}
	if force {
		return c.Redirect(http.StatusFound, PasswordChangePath)
	}
	return c.Redirect(http.StatusFound, SafeNext(form.Next))
}

func (h *Handler) Logout(c echo.Context) error {
	h.sessions.Logout(c)
	return c.Redirect(http.StatusFound, LoginPath)
}

func (h *Handler) PasswordChangeForm(c echo.Context) error {
	return c.Render(http.StatusOK, "accounts/password_change.html", map[string]interface{}{
		"error": "",
	})
}

func (h *Handler) PasswordChange(c echo.Context) error {
	form := PasswordChangeForm{
		OldPassword:  c.FormValue("old_password"),
		NewPassword1: c.FormValue("new_password1"),
		NewPassword2: c.FormValue("new_password2"),
	}
	renderErr := func(msg string) error {
		return c.Render(http.StatusOK, "accounts/password_change.html", map[string]interface{}{
			"error": msg,
		})
	}
	if err := h.validator.Validate(form); err != nil {
		return renderErr(err.Error())
	}
	u, _ := auth.UserFromContext(c.Request().Context())
	err := h.svc.ChangePassword(c.Request().Context(), u.ID, form.OldPassword, form.NewPassword1)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return renderErr("your old password was entered incorrectly")
	case errors.Is(err, ErrBannedPassword):
		return renderErr(err.Error())
	case err != nil:
		return err
	}
	return c.Redirect(http.StatusFound, "/")
}

// SafeNext returns next when it is a local path, else "/".
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
