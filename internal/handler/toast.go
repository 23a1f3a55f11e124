package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListToasts returns the workspace's pending notifications, oldest first.
func ListToasts(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	return c.JSON(http.StatusOK, ws.Toasts.List())
}

// DismissToast removes one notification before it expires.
func DismissToast(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	if !ws.Toasts.Remove(c.Param("id")) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	return c.NoContent(http.StatusNoContent)
}
