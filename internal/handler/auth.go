package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/toast"
)

// AuthHandler serves sign-up, sign-in, sign-out and token refresh.  Every
// call goes through the caller's Session State so that the workspace's
// cart and guards follow the new identity.
type AuthHandler struct {
	Timeout time.Duration
}

func NewAuthHandler(timeout time.Duration) *AuthHandler {
	return &AuthHandler{Timeout: timeout}
}

// ----- DTOs -----

type signupReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// sessionResp is returned by every endpoint that establishes a session.
// Cookie clients may ignore the tokens; bearer clients send the access
// token back, its sid claim naming their workspace.
type sessionResp struct {
	*gateway.Session
	WorkspaceID string `json:"workspace_id"`
}

// Signup: create the account and its profile, leaving the workspace signed in.
func (h *AuthHandler) Signup(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Session.SignUp(ctx, req.Email, req.Password, req.FullName); err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Account created", toast.Success)
	return c.JSON(http.StatusCreated, sessionResp{Session: ws.Client.CurrentSession(), WorkspaceID: ws.ID})
}

// Login: verify credentials; the identity reaches Session State through
// the SIGNED_IN notification.
func (h *AuthHandler) Login(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Session.SignIn(ctx, req.Email, req.Password); err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Signed in", toast.Success)
	return c.JSON(http.StatusOK, sessionResp{Session: ws.Client.CurrentSession(), WorkspaceID: ws.ID})
}

// Logout: the workspace is anonymous as soon as this runs, even when
// ending the remote session fails.
func (h *AuthHandler) Logout(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Session.SignOut(ctx); err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Signed out", toast.Info)
	return c.NoContent(http.StatusNoContent)
}

// Refresh: rotate the refresh token.  An empty body rotates the token the
// workspace already holds.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	s, err := ws.Client.RefreshSession(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, sessionResp{Session: s, WorkspaceID: ws.ID})
}
