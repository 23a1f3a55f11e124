package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/model"
)

// CatalogHandler serves the public catalog.  Responses do not depend on
// the caller, which lets the router put them behind the Redis cache.
type CatalogHandler struct {
	Backend *gateway.Backend
	Timeout time.Duration
}

func NewCatalogHandler(b *gateway.Backend, timeout time.Duration) *CatalogHandler {
	if b == nil {
		panic("nil backend passed to NewCatalogHandler")
	}
	return &CatalogHandler{Backend: b, Timeout: timeout}
}

// productFilter reads category, brand, featured, search, limit and offset.
func productFilter(c echo.Context) model.ProductFilter {
	f := model.ProductFilter{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Brand:    strings.TrimSpace(c.QueryParam("brand")),
		Search:   strings.TrimSpace(c.QueryParam("search")),
		Limit:    queryInt(c, "limit", model.DefaultProductLimit),
		Offset:   queryInt(c, "offset", 0),
	}
	if v := c.QueryParam("featured"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			f.Featured = &b
		}
	}
	return f
}

// Products lists products, newest first.
func (h *CatalogHandler) Products(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, err := h.Backend.ListProducts(ctx, productFilter(c))
	if err != nil {
		return fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Product returns one product with its reviews.
func (h *CatalogHandler) Product(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	p, err := h.Backend.ProductBySlug(ctx, c.Param("slug"))
	if err != nil {
		return fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Categories lists categories by name.
func (h *CatalogHandler) Categories(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, err := h.Backend.ListCategories(ctx)
	if err != nil {
		return fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Brands lists brands by name.
func (h *CatalogHandler) Brands(c echo.Context) error {
	ctx, cancel := withTimeout(c, h.Timeout)
	defer cancel()

	items, err := h.Backend.ListBrands(ctx)
	if err != nil {
		return fail(c, nil, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
