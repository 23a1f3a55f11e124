package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/toast"
)

// ReviewHandler lets signed-in users review products.
type ReviewHandler struct {
	Timeout time.Duration
}

func NewReviewHandler(timeout time.Duration) *ReviewHandler {
	return &ReviewHandler{Timeout: timeout}
}

type reviewReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// Create posts a review of the product in the path.
func (h *ReviewHandler) Create(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req reviewReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	r, err := ws.Client.CreateReview(ctx, c.Param("id"), req.Rating, strings.TrimSpace(req.Comment))
	if err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Review posted", toast.Success)
	return c.JSON(http.StatusCreated, r)
}

// Update edits one of the caller's reviews.
func (h *ReviewHandler) Update(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req reviewReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	r, err := ws.Client.UpdateReview(ctx, c.Param("id"), req.Rating, strings.TrimSpace(req.Comment))
	if err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Delete removes one of the caller's reviews.
func (h *ReviewHandler) Delete(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Client.DeleteReview(ctx, c.Param("id")); err != nil {
		return fail(c, ws, err)
	}
	return c.NoContent(http.StatusNoContent)
}
