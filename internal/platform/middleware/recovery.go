package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 and logs it with the request id,
// the signed-in user and the panicking goroutine's stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize:           4 << 10,
		DisableStackAll:     true,
		DisableErrorHandler: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("user_id", auth.UserIDFromContext(c.Request().Context())).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Bytes("stack", stack).
				Msg("panic recovered")
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		},
	})
}
