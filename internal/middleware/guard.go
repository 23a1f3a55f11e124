package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/guard"
)

// RequireAuthenticated lets a request through only when its workspace has
// a signed-in identity.
func RequireAuthenticated(paths guard.Paths) echo.MiddlewareFunc {
	return requireGuard(guard.Authenticated, nil, paths)
}

// RequireAdmin lets a request through only when the signed-in identity
// passes policy.
func RequireAdmin(policy guard.AdminPolicy, paths guard.Paths) echo.MiddlewareFunc {
	return requireGuard(guard.Admin, policy, paths)
}

// requireGuard renders a guard decision: Checking becomes 202 with a
// status body (the session is still resolving), Deny becomes a 303 to the
// decision's redirect target.  It must run after Workspaces.
func requireGuard(kind guard.Kind, policy guard.AdminPolicy, paths guard.Paths) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ws := WorkspaceFrom(c)
			if ws == nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "no workspace"})
			}
			d := guard.Evaluate(kind, ws.Session.Snapshot(), policy, paths, c.Request().URL.RequestURI())
			switch d.Outcome {
			case guard.Checking:
				return c.JSON(http.StatusAccepted, echo.Map{"status": "checking"})
			case guard.Deny:
				return c.Redirect(http.StatusSeeOther, d.Redirect)
			}
			return next(c)
		}
	}
}
