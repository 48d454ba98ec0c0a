package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists infrastructure endpoints that never require a session.
var publicPaths = map[string]bool{
	"/health":          true,
	"/health/db":       true,
	"/metrics":         true,
	"/accounts/login":  true,
	"/accounts/banned": true,
}

// IsPublicPath reports whether path bypasses login and audit.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// PublicSkipper can be used as an echo middleware Skipper for public paths.
func PublicSkipper(c echo.Context) bool {
	return publicPaths[c.Request().URL.Path]
}
