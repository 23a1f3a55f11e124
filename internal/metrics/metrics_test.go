package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/v1/products/:slug", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/products/:slug"))
	for _, slug := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/products/"+slug, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/products/:slug")))

	errBefore := testutil.ToFloat64(httpErrorsTotal.WithLabelValues(http.MethodGet, "/boom", "500"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(httpErrorsTotal.WithLabelValues(http.MethodGet, "/boom", "500")))
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(cartOpsTotal.WithLabelValues("add_item", "error"))
	CartOp("add_item", errors.New("x"))
	assert.Equal(t, before+1, testutil.ToFloat64(cartOpsTotal.WithLabelValues("add_item", "error")))

	g := testutil.ToFloat64(workspacesActive)
	WorkspaceOpened()
	WorkspaceOpened()
	WorkspaceClosed()
	assert.Equal(t, g+1, testutil.ToFloat64(workspacesActive))

	a := testutil.ToFloat64(authEventsTotal.WithLabelValues("SIGNED_IN"))
	AuthEvent("SIGNED_IN")
	assert.Equal(t, a+1, testutil.ToFloat64(authEventsTotal.WithLabelValues("SIGNED_IN")))

	hits := testutil.ToFloat64(catalogCacheTotal.WithLabelValues("hit"))
	CacheLookup(true)
	CacheLookup(false)
	assert.Equal(t, hits+1, testutil.ToFloat64(catalogCacheTotal.WithLabelValues("hit")))
}
