package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/ehr/tracker/internal/platform/auth"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleExpiry is how long a caller's bucket is kept after its last
	// request. Zero means three minutes.
	IdleExpiry time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleExpiry:        3 * time.Minute,
	}
}

// RateLimit applies a token bucket per signed-in user, or per client IP for
// anonymous requests. Buckets idle for longer than IdleExpiry are dropped.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.BurstSize,
		ExpiresIn: cfg.IdleExpiry,
	})
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)
	retryAfter := "1"
	if cfg.RequestsPerSecond > 0 && cfg.RequestsPerSecond < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / cfg.RequestsPerSecond)))
	}

	limiter := echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				return "user:" + uid, nil
			}
			return "ip:" + c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			h := c.Response().Header()
			h.Set("Retry-After", retryAfter)
			h.Set("X-RateLimit-Remaining", "0")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limited := limiter(next)
		return func(c echo.Context) error {
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			return limited(c)
		}
	}
}
