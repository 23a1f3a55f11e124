package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/toast"
)

// CartHandler exposes the workspace's Cart State.  Every mutation answers
// with the reloaded cart view.
type CartHandler struct {
	Timeout time.Duration
}

func NewCartHandler(timeout time.Duration) *CartHandler {
	return &CartHandler{Timeout: timeout}
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type quantityReq struct {
	Quantity *int `json:"quantity"`
}

// Get returns the cart view.  ?reload=true fetches the list again first.
func (h *CartHandler) Get(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	if c.QueryParam("reload") == "true" {
		ctx, cancel := withTimeout(c, h.Timeout)
		defer cancel()
		if err := ws.Cart.Load(ctx); err != nil {
			return fail(c, ws, err)
		}
	}
	return c.JSON(http.StatusOK, ws.Cart.View())
}

// AddItem adds quantity (default 1) of a product to the cart.
func (h *CartHandler) AddItem(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req addItemReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return badRequest(c, "product_id required")
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Cart.AddItem(ctx, req.ProductID, qty); err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Added to cart", toast.Success)
	return c.JSON(http.StatusOK, ws.Cart.View())
}

// UpdateQuantity sets the quantity of one line item.
func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req quantityReq
	if err := c.Bind(&req); err != nil || req.Quantity == nil {
		return badRequest(c, "quantity required")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Cart.UpdateQuantity(ctx, c.Param("id"), *req.Quantity); err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, ws.Cart.View())
}

// RemoveItem deletes one line item.
func (h *CartHandler) RemoveItem(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Cart.RemoveItem(ctx, c.Param("id")); err != nil {
		return fail(c, ws, err)
	}
	ws.Toasts.Add("Removed from cart", toast.Info)
	return c.JSON(http.StatusOK, ws.Cart.View())
}

// Clear empties the cart.
func (h *CartHandler) Clear(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := ws.Cart.ClearCart(ctx); err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, ws.Cart.View())
}
