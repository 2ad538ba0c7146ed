package auth

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireCapability rejects anonymous callers with 401 and callers lacking
// the capability with 403.
func RequireCapability(capability Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if !p.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !p.Has(capability) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("required capability: %s", capability))
			}
			return next(c)
		}
	}
}
