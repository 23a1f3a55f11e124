// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/guard"
	"github.com/iliyamo/storefront/internal/handler"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/workspace"
)

// Deps is everything the routes need.  Redis may be nil; caching and rate
// limiting then switch off.
type Deps struct {
	Backend   *gateway.Backend
	Registry  *workspace.Registry
	Session   config.SessionConfig
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig // credential endpoints
	Workspace config.RateLimitConfig // every workspace-backed route, keyed by IP
	JWTSecret string
	Redis     *redis.Client
}

// RegisterRoutes registers routes that need no workspace: the health
// check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAll registers every storefront route.
func RegisterAll(e *echo.Echo, d Deps) {
	RegisterRoutes(e)

	timeout := d.Session.GatewayTimeout
	paths := guard.Paths{Login: d.Session.LoginPath, Home: d.Session.HomePath}

	RegisterPublic(e, handler.NewCatalogHandler(d.Backend, timeout), d.Cache, d.Redis)

	v1 := e.Group("/v1",
		middleware.NewTokenBucket(d.Workspace, d.Redis),
		middleware.Workspaces(d.Registry, d.Session, d.JWTSecret))
	RegisterAuth(v1, handler.NewAuthHandler(timeout), handler.NewAccountHandler(timeout),
		middleware.NewTokenBucket(d.RateLimit, d.Redis))

	member := v1.Group("", middleware.RequireAuthenticated(paths))
	RegisterAccount(member, handler.NewAccountHandler(timeout))
	RegisterCart(member, handler.NewCartHandler(timeout))
	RegisterOrders(member, handler.NewOrderHandler(timeout), handler.NewReviewHandler(timeout))

	admin := v1.Group("/admin", middleware.RequireAdmin(guard.PolicyFromConfig(d.Session), paths))
	RegisterAdmin(admin, handler.NewAdminHandler(d.Backend, timeout), d.Cache, d.Redis)
}

// RegisterPublic registers the catalog.  It needs no workspace, so cached
// responses are shared by every caller.
func RegisterPublic(e *echo.Echo, h *handler.CatalogHandler, cache config.CacheConfig, rdb *redis.Client) {
	g := e.Group("/v1", middleware.NewRedisCache(cache, rdb))
	g.GET("/products", h.Products)
	g.GET("/products/:slug", h.Product)
	g.GET("/categories", h.Categories)
	g.GET("/brands", h.Brands)
}

// RegisterAuth registers the session snapshot and the sign-in flows.
// limit guards the credential endpoints.
func RegisterAuth(g *echo.Group, a *handler.AuthHandler, acct *handler.AccountHandler, limit echo.MiddlewareFunc) {
	g.GET("/session", acct.Session)

	auth := g.Group("/auth")
	auth.POST("/signup", a.Signup, limit)
	auth.POST("/login", a.Login, limit)
	auth.POST("/refresh", a.Refresh, limit)
	auth.POST("/logout", a.Logout)
}

// RegisterAccount registers the signed-in user's account and notifications.
func RegisterAccount(g *echo.Group, h *handler.AccountHandler) {
	g.GET("/me", h.Me)
	g.PATCH("/me/profile", h.UpdateProfile)
	g.GET("/toasts", handler.ListToasts)
	g.DELETE("/toasts/:id", handler.DismissToast)
}

// RegisterCart registers the cart endpoints.
func RegisterCart(g *echo.Group, h *handler.CartHandler) {
	g.GET("/cart", h.Get)
	g.DELETE("/cart", h.Clear)
	g.POST("/cart/items", h.AddItem)
	g.PATCH("/cart/items/:id", h.UpdateQuantity)
	g.DELETE("/cart/items/:id", h.RemoveItem)
}

// RegisterOrders registers orders, checkout and reviews.
func RegisterOrders(g *echo.Group, o *handler.OrderHandler, r *handler.ReviewHandler) {
	g.GET("/orders", o.List)
	g.GET("/orders/:id", o.Get)
	g.POST("/orders", o.Checkout)

	g.POST("/products/:id/reviews", r.Create)
	g.PUT("/reviews/:id", r.Update)
	g.DELETE("/reviews/:id", r.Delete)
}

// RegisterAdmin registers the admin console.  Product writes drop the
// catalog cache.
func RegisterAdmin(g *echo.Group, h *handler.AdminHandler, cache config.CacheConfig, rdb *redis.Client) {
	products := g.Group("/products", middleware.InvalidateOnWrite(cache, rdb))
	products.GET("", h.Products)
	products.POST("", h.CreateProduct)
	products.PUT("/:id", h.UpdateProduct)
	products.DELETE("/:id", h.DeleteProduct)

	g.GET("/orders", h.Orders)
	g.PATCH("/orders/:id/status", h.UpdateOrderStatus)
	g.GET("/customers", h.Customers)
	g.GET("/dashboard", h.Dashboard)
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second
