package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// DefaultCookieName is the name of the session cookie.
const DefaultCookieName = "tracker_session"

var ErrInvalidSession = errors.New("invalid session")

// User is the authenticated principal attached to a request.
type User struct {
	ID       uuid.UUID
	Username string
}

type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Sessions issues and verifies HS256-signed session cookies.
type Sessions struct {
	key        []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	revoked    RevocationList
	now        func() time.Time
}

func NewSessions(secret string, ttl time.Duration, secure bool) *Sessions {
	return &Sessions{
		key:        []byte(secret),
		ttl:        ttl,
		cookieName: DefaultCookieName,
		secure:     secure,
		now:        time.Now,
	}
}

// WithRevocations makes Logout revoke the session id and Parse reject it.
func (s *Sessions) WithRevocations(r RevocationList) *Sessions {
	s.revoked = r
	return s
}

// Issue signs a token for u.
func (s *Sessions) Issue(u User) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: u.Username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns the user it was issued for.
func (s *Sessions) Parse(tokenStr string) (User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return User{}, ErrInvalidSession
	}
	if s.revoked != nil && s.revoked.IsRevoked(claims.ID) {
		return User{}, ErrInvalidSession
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return User{}, ErrInvalidSession
	}
	return User{ID: id, Username: claims.Username}, nil
}

// Login sets the session cookie for u on the response.
func (s *Sessions) Login(c echo.Context, u User) error {
	token, err := s.Issue(u)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(s.ttl),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout expires the session cookie and, when a revocation list is
// configured, revokes the token it carried.
func (s *Sessions) Logout(c echo.Context) {
	if cookie, err := c.Cookie(s.cookieName); err == nil && s.revoked != nil {
		s.revoke(cookie.Value)
	}
	c.SetCookie(&http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Sessions) revoke(tokenStr string) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	s.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
}

// Middleware attaches the user from a valid session cookie to the request
// context. Requests without a valid session pass through anonymously.
func (s *Sessions) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(s.cookieName)
			if err != nil || cookie.Value == "" {
				return next(c)
			}
			u, err := s.Parse(cookie.Value)
			if err != nil {
				return next(c)
			}
			c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), u)))
			c.Set("user_id", u.ID.String())
			return next(c)
		}
	}
}

// RequireLogin redirects anonymous requests to loginURL, preserving the
// requested path in the next parameter.
func RequireLogin(loginURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := UserFromContext(c.Request().Context()); ok {
				return next(c)
			}
			target := loginURL + "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
			return c.Redirect(http.StatusFound, target)
		}
	}
}

// RequireAPILogin rejects anonymous requests with 401.
func RequireAPILogin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := UserFromContext(c.Request().Context()); ok {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
	}
}

func WithUser(ctx context.Context, u User) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, u.ID)
	return context.WithValue(ctx, UsernameKey, u.Username)
}

func UserFromContext(ctx context.Context) (User, bool) {
	id, ok := ctx.Value(UserIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return User{}, false
	}
	name, _ := ctx.Value(UsernameKey).(string)
	return User{ID: id, Username: name}, true
}

func UserIDFromContext(ctx context.Context) string {
	u, ok := UserFromContext(ctx)
	if !ok {
		return ""
	}
	return u.ID.String()
}
