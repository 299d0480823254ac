package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/ward/pkg/apperr"
)

// Authorize succeeds when the identity holds required or admin:all.
func Authorize(id *Identity, required Permission) error {
	if id == nil {
		return apperr.Unauthenticated(msgNoToken)
	}
	if id.Permissions.Has(required) || id.Permissions.Has(AdminAll) {
		return nil
	}
	return apperr.Forbidden("Access denied. %s permission required.", required)
}

// IsAdmin is the coarse admin gate: admin:all, or any role:* or user:*
// permission.
func IsAdmin(id *Identity) bool {
	if id == nil {
		return false
	}
	for p := range id.Permissions {
		if p == AdminAll {
			return true
		}
		s := string(p)
		if strings.HasPrefix(s, "role:") || strings.HasPrefix(s, "user:") {
			return true
		}
	}
	return false
}

// RequirePermission returns middleware enforcing Authorize.
func RequirePermission(required Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := Authorize(IdentityFromContext(c.Request().Context()), required); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireAdmin returns middleware enforcing IsAdmin.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := IdentityFromContext(c.Request().Context())
			if id == nil {
				return apperr.Unauthenticated(msgNoToken)
			}
			if !IsAdmin(id) {
				return apperr.Forbidden("Access denied. Admin role required.")
			}
			return next(c)
		}
	}
}
