// Package middleware holds Echo middleware shared by the HTTP API.
package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// APIPrefix is the path prefix whose responses are never cached.
const APIPrefix = "/api"

// SecurityHeaders sets conservative browser security headers on every
// response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "SAMEORIGIN")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "frame-ancestors 'self'")

			// Source lists and reports change on every sync.
			if strings.HasPrefix(c.Request().URL.Path, APIPrefix) {
				h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
				h.Set("Pragma", "no-cache")
			}

			return next(c)
		}
	}
}
