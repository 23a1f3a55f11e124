package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/utils"
	"github.com/iliyamo/storefront/internal/workspace"
)

// Context keys set by Workspaces.
const (
	CtxWorkspace = "workspace"
	CtxUserID    = "user_id"
	CtxRole      = "role"
)

// Workspaces returns a middleware that attaches the caller's workspace to
// the request.  A Bearer access token names the workspace through its sid
// claim; otherwise the workspace cookie does, and a first-time caller gets
// a fresh id and cookie.  The request waits up to cfg.InitWait for the
// workspace's session lookup, so most requests see a resolved session.
func Workspaces(reg *workspace.Registry, cfg config.SessionConfig, secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, bearerSub, err := resolveWorkspaceID(c, cfg, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			ws := reg.Open(id)
			if ws == nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "shutting down"})
			}
			ws.WaitReady(c.Request().Context(), cfg.InitWait)

			snap := ws.Session.Snapshot()
			if bearerSub != "" && snap.Ready() && (snap.Identity == nil || snap.Identity.ID != bearerSub) {
				// the token outlived the session it was issued for
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session ended"})
			}

			c.Set(CtxWorkspace, ws)
			if snap.Identity != nil {
				c.Set(CtxUserID, snap.Identity.ID)
				c.Set(CtxRole, snap.Identity.Role)
			}
			return next(c)
		}
	}
}

// resolveWorkspaceID returns the workspace id of the request and, for
// bearer requests, the token subject.
func resolveWorkspaceID(c echo.Context, cfg config.SessionConfig, secret string) (id, sub string, err error) {
	if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return "", "", err
		}
		if claims.Sid == "" {
			return "", "", utils.ErrInvalidToken
		}
		return claims.Sid, claims.Subject, nil
	}

	if ck, err := c.Cookie(cfg.CookieName); err == nil {
		if _, perr := uuid.Parse(ck.Value); perr == nil {
			return ck.Value, "", nil
		}
	}
	id = workspace.NewID()
	c.SetCookie(&http.Cookie{
		Name:     cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
	return id, "", nil
}

// WorkspaceFrom returns the workspace attached by Workspaces, or nil.
func WorkspaceFrom(c echo.Context) *workspace.Workspace {
	ws, _ := c.Get(CtxWorkspace).(*workspace.Workspace)
	return ws
}

// currentUserID returns the signed-in user id of the request, "anon" for
// anonymous callers.
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}

// currentWorkspaceID returns the request's workspace id, "none" outside
// the Workspaces middleware.
func currentWorkspaceID(c echo.Context) string {
	if ws := WorkspaceFrom(c); ws != nil {
		return ws.ID
	}
	return "none"
}
