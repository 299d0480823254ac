package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass Authenticate. Matched against the registered route
// path, not the raw URL.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/metrics":           true,
	"/api/v1/health":     true,
	"/api/v1/auth/login": true,
}

func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
