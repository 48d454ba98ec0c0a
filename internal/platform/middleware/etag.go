package middleware

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ETagConfig controls which responses get validators.
type ETagConfig struct {
	// Prefixes limits the middleware to matching paths. Empty means all.
	Prefixes []string
	// Vary is sent with every tagged response. Templates differ per user
	// (restricted teams), so callers usually vary on Cookie.
	Vary []string
}

// ETag buffers successful GET responses, tags them with a weak ETag and
// answers a matching If-None-Match with 304. Responses are marked private
// with no-cache so browsers always revalidate.
func ETag(cfg ETagConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if (req.Method != http.MethodGet && req.Method != http.MethodHead) || !hasPrefix(req.URL.Path, cfg.Prefixes) {
				return next(c)
			}

			res := c.Response()
			orig := res.Writer
			buf := &bufferedResponseWriter{writer: orig, statusCode: http.StatusOK}
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}

			if buf.statusCode != http.StatusOK {
				return buf.flushTo()
			}

			etag := computeETag(buf.buf.Bytes())
			h := res.Header()
			h.Set("ETag", etag)
			h.Set("Cache-Control", "private, no-cache")
			if len(cfg.Vary) > 0 {
				h.Set("Vary", strings.Join(cfg.Vary, ", "))
			}
			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				h.Del(echo.HeaderContentLength)
				orig.WriteHeader(http.StatusNotModified)
				return nil
			}
			return buf.flushTo()
		}
	}
}

func hasPrefix(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// bufferedResponseWriter holds the status and body until the ETag is known.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func (w *bufferedResponseWriter) Header() http.Header { return w.writer.Header() }

func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferedResponseWriter) WriteHeader(code int) { w.statusCode = code }

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.writer.Write(w.buf.Bytes())
	return err
}

func computeETag(body []byte) string {
	return fmt.Sprintf(`W/"%x"`, md5.Sum(body))
}

// etagMatch compares weakly against a comma-separated If-None-Match value.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
