package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	authEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_auth_events_total",
		Help: "Auth change notifications emitted by gateway clients.",
	}, []string{"event"})

	cartOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_operations_total",
		Help: "Cart State operations by outcome.",
	}, []string{"operation", "outcome"})

	catalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_cache_lookups_total",
		Help: "Catalog response cache lookups by result.",
	}, []string{"result"})

	workspacesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_workspaces_active",
		Help: "Client workspaces currently held by the registry.",
	})
)

// Middleware records request metrics labelled by the echo route pattern.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			code := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(method, route).Inc()
			httpRequestDuration.WithLabelValues(method, route, code).Observe(time.Since(start).Seconds())
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(method, route, code).Inc()
			}
			return err
		}
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthEvent counts one auth change notification.
func AuthEvent(event string) { authEventsTotal.WithLabelValues(event).Inc() }

// CartOp counts one cart operation; err decides the outcome label.
func CartOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cartOpsTotal.WithLabelValues(op, outcome).Inc()
}

// CacheLookup counts one catalog cache lookup; hit decides the label.
func CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	catalogCacheTotal.WithLabelValues(result).Inc()
}

// WorkspaceOpened and WorkspaceClosed track the registry size.
func WorkspaceOpened() { workspacesActive.Inc() }
func WorkspaceClosed() { workspacesActive.Dec() }
