// Package handler holds the JSON endpoints of the storefront.  Handlers
// act on the caller's workspace, which the Workspaces middleware attaches
// to every request, and turn errors into echo.Map{"error": ...} bodies
// that are also queued as error toasts.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/cart"
	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/session"
	"github.com/iliyamo/storefront/internal/toast"
	"github.com/iliyamo/storefront/internal/workspace"
)

const defaultTimeout = 5 * time.Second

// withTimeout bounds a gateway call made for c.
func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(c.Request().Context(), d)
}

// workspaceOf returns the caller's workspace.  Routes that use it are
// always mounted behind middleware.Workspaces.
func workspaceOf(c echo.Context) (*workspace.Workspace, error) {
	ws := middleware.WorkspaceFrom(c)
	if ws == nil {
		return nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "no workspace"})
	}
	return ws, nil
}

// statusFor maps an error to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	var pw *session.PartialWriteError
	switch {
	case errors.As(err, &pw):
		return http.StatusBadGateway, pw.Error()
	case errors.Is(err, gateway.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, gateway.ErrInvalidRefresh):
		return http.StatusUnauthorized, "invalid refresh"
	case errors.Is(err, gateway.ErrNotAuthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, gateway.ErrForbidden), errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, gateway.ErrEmailExists):
		return http.StatusConflict, "email already exists"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, gateway.ErrInvalidQty),
		errors.Is(err, gateway.ErrWeakPassword),
		errors.Is(err, gateway.ErrInvalidEmail),
		errors.Is(err, gateway.ErrInvalidRating),
		errors.Is(err, gateway.ErrInvalidStatus),
		errors.Is(err, gateway.ErrEmptyCart):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, gateway.ErrNotConfigured):
		return http.StatusNotImplemented, "not available"
	case errors.Is(err, cart.ErrClosed):
		return http.StatusServiceUnavailable, "workspace closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "backend timeout"
	}
	return http.StatusInternalServerError, "internal error"
}

// rootMessage returns the text of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// fail renders err and queues it as an error toast on ws when ws is set.
func fail(c echo.Context, ws *workspace.Workspace, err error) error {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	if ws != nil {
		ws.Toasts.Add(msg, toast.Error)
	}
	body := echo.Map{"error": msg}
	var pw *session.PartialWriteError
	if errors.As(err, &pw) {
		body["step"] = pw.Step
		body["compensated"] = pw.Compensated
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// queryInt reads a non-negative integer query parameter, def when absent
// or malformed.
func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || n < 0 {
		return def
	}
	return n
}
