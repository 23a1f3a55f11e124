package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/workspace"
)

// AdminHandler backs the admin console.  Routes are mounted behind
// middleware.RequireAdmin, so handlers do not re-check the caller.
type AdminHandler struct {
	Backend *gateway.Backend
	Timeout time.Duration
}

func NewAdminHandler(b *gateway.Backend, timeout time.Duration) *AdminHandler {
	if b == nil {
		panic("nil backend passed to NewAdminHandler")
	}
	return &AdminHandler{Backend: b, Timeout: timeout}
}

type statusReq struct {
	Status string `json:"status"`
}

// caller is the admin's workspace, used for error toasts only.
func caller(c echo.Context) *workspace.Workspace { return middleware.WorkspaceFrom(c) }

// Products lists products with the same filters as the catalog, uncached.
func (h *AdminHandler) Products(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, err := h.Backend.ListProducts(ctx, productFilter(c))
	if err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// CreateProduct adds a product with its ordered gallery.
func (h *AdminHandler) CreateProduct(c echo.Context) error {
	var req model.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.ToLower(strings.TrimSpace(req.Slug))
	if req.Name == "" || req.Slug == "" {
		return badRequest(c, "name/slug required")
	}
	if req.Price < 0 || req.Stock < 0 {
		return badRequest(c, "price/stock must not be negative")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	p, err := h.Backend.CreateProduct(ctx, req)
	if err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusCreated, p)
}

// UpdateProduct applies a partial update; images, when given, replace the gallery.
func (h *AdminHandler) UpdateProduct(c echo.Context) error {
	var req model.ProductPatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if (req.Price != nil && *req.Price < 0) || (req.Stock != nil && *req.Stock < 0) {
		return badRequest(c, "price/stock must not be negative")
	}

	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	p, err := h.Backend.UpdateProduct(ctx, c.Param("id"), req)
	if err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusOK, p)
}

// DeleteProduct removes a product.
func (h *AdminHandler) DeleteProduct(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	if err := h.Backend.DeleteProduct(ctx, c.Param("id")); err != nil {
		return fail(c, caller(c), err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Orders lists every order, newest first.
func (h *AdminHandler) Orders(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, err := h.Backend.ListAllOrders(ctx, queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// UpdateOrderStatus moves an order to another status.
func (h *AdminHandler) UpdateOrderStatus(c echo.Context) error {
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	status := strings.ToLower(strings.TrimSpace(req.Status))
	if err := h.Backend.UpdateOrderStatus(ctx, c.Param("id"), status); err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "status": status})
}

// Customers lists customer profiles.
func (h *AdminHandler) Customers(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, err := h.Backend.ListCustomers(ctx, queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Dashboard returns store totals and the latest orders.
func (h *AdminHandler) Dashboard(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	stats, err := h.Backend.Dashboard(ctx)
	if err != nil {
		return fail(c, caller(c), err)
	}
	return c.JSON(http.StatusOK, stats)
}
