package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/toast"
)

// AccountHandler serves the session snapshot and the signed-in user's
// own account.
type AccountHandler struct {
	Timeout time.Duration
}

func NewAccountHandler(timeout time.Duration) *AccountHandler {
	return &AccountHandler{Timeout: timeout}
}

// Session returns the workspace's session phase and identity together
// with a cart summary.  It never blocks on an unresolved session.
func (h *AccountHandler) Session(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	snap := ws.Session.Snapshot()
	return c.JSON(http.StatusOK, echo.Map{
		"phase":         snap.Phase,
		"user":          snap.Identity,
		"authenticated": snap.Authenticated(),
		"cart": echo.Map{
			"item_count": ws.Cart.ItemCount(),
			"total":      ws.Cart.Total(),
			"loading":    ws.Cart.Loading(),
		},
	})
}

// Me returns the identity and its profile row.
func (h *AccountHandler) Me(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	p, err := ws.Client.Profile(ctx)
	if err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": ws.Session.Identity(), "profile": p})
}

// UpdateProfile writes the given fields to the auth metadata and the
// profile row.
func (h *AccountHandler) UpdateProfile(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req model.ProfileFields
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Session.UpdateProfile(ctx, req); err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Profile updated", toast.Success)
	return c.JSON(http.StatusOK, echo.Map{"user": ws.Session.Identity()})
}
