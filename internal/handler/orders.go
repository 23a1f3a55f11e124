package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/toast"
)

// OrderHandler serves the signed-in user's orders and checkout.
type OrderHandler struct {
	Timeout time.Duration
}

func NewOrderHandler(timeout time.Duration) *OrderHandler {
	return &OrderHandler{Timeout: timeout}
}

type checkoutReq struct {
	ShippingAddress json.RawMessage `json:"shipping_address"`
	BillingAddress  json.RawMessage `json:"billing_address"`
}

// List returns the caller's orders, newest first.
func (h *OrderHandler) List(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	orders, err := ws.Client.ListOrders(ctx)
	if err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": orders})
}

// Get returns one of the caller's orders.
func (h *OrderHandler) Get(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	o, err := ws.Client.GetOrder(ctx, c.Param("id"))
	if err != nil {
		return fail(c, ws, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Checkout places a pending order from the current cart and then empties
// the cart.  A failed clear does not undo the order; the client sees the
// order and a toast about the leftover cart.
func (h *OrderHandler) Checkout(c echo.Context) error {
	ws, err := workspaceOf(c)
	if ws == nil {
		return err
	}
	var req checkoutReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if len(req.ShippingAddress) == 0 {
		return badRequest(c, "shipping_address required")
	}
	if len(req.BillingAddress) == 0 {
		req.BillingAddress = req.ShippingAddress
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	o, err := ws.Client.PlaceOrder(ctx, req.ShippingAddress, req.BillingAddress)
	if err != nil {
		return fail(c, ws, err)
	}
	if err := ws.Cart.ClearCart(ctx); err != nil {
		c.Logger().Warnf("checkout %s: clear cart: %v", o.ID, err)
		ws.Toasts.Add("Order placed, but the cart could not be emptied", toast.Error)
	} else {
		ws.Toasts.Add("Order placed", toast.Success)
	}
	return c.JSON(http.StatusCreated, o)
}
