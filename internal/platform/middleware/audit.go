package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/auth"
)

// AuditEntry records who touched which part of the JSON API.
type AuditEntry struct {
	UserID     string
	Username   string
	Resource   string
	ObjectID   string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every request under /api/ with the acting user. Other paths are
// passed through untouched.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Action:     httpMethodToAction(req.Method),
			}
			if u, ok := auth.UserFromContext(req.Context()); ok {
				entry.UserID = u.ID.String()
				entry.Username = u.Username
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}
			entry.Resource, entry.ObjectID = splitAPIPath(path)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("username", entry.Username).
				Str("resource", entry.Resource).
				Str("object_id", entry.ObjectID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("api_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitAPIPath extracts the resource and object id from paths like
// /api/v1/episode/<id> or /api/v1/records/<kind>/<id>.
func splitAPIPath(path string) (resource, id string) {
	rest := strings.TrimPrefix(path, "/api/")
	if i := strings.Index(rest, "/"); i >= 0 && strings.HasPrefix(rest, "v") {
		rest = rest[i+1:]
	}
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	resource = segments[0]
	if resource == "records" && len(segments) > 1 {
		resource = segments[1]
		segments = segments[1:]
	}
	if len(segments) > 1 {
		id = segments[1]
	}
	return resource, id
}
