package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/gateway/gatewaytest"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/workspace"
)

const secret = "router-secret"

type app struct {
	e   *echo.Echo
	reg *workspace.Registry
	mem *gatewaytest.Memory
}

func newApp(t *testing.T) *app {
	t.Helper()
	mem := gatewaytest.NewMemory()
	mem.AddProduct(model.Product{ID: "p1", Name: "Desk Lamp", Slug: "desk-lamp", Price: 25, Stock: 4, Featured: true})
	mem.AddProduct(model.Product{ID: "p2", Name: "Notebook", Slug: "notebook", Price: 4.5, Stock: 100})
	mem.Products.Categories = []model.Category{{ID: "c2", Name: "Stationery", Slug: "stationery"}, {ID: "c1", Name: "Lighting", Slug: "lighting"}}

	b := gateway.NewBackend(mem.Deps(), gateway.Options{Secret: secret, BcryptCost: 4})
	reg := workspace.NewRegistry(b, workspace.Options{ToastTTL: time.Minute})
	t.Cleanup(reg.Close)

	e := echo.New()
	RegisterAll(e, Deps{
		Backend:  b,
		Registry: reg,
		Session: config.SessionConfig{
			CookieName:     "sf_ws",
			InitWait:       time.Second,
			GatewayTimeout: time.Second,
			LoginPath:      "/login",
			HomePath:       "/",
			AdminPolicy:    config.AdminPolicyRole,
			AdminRoles:     []string{"ADMIN"},
		},
		JWTSecret: secret,
	})
	return &app{e: e, reg: reg, mem: mem}
}

// browser keeps the workspace cookie between requests, or sends a bearer
// token instead when one is set.
type browser struct {
	t      *testing.T
	a      *app
	cookie *http.Cookie
	bearer string
}

func (a *app) browser(t *testing.T) *browser { return &browser{t: t, a: a} }

func (b *browser) do(method, path string, body any) *httptest.ResponseRecorder {
	b.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(b.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if b.bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+b.bearer)
	} else if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.a.e.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "sf_ws" {
			b.cookie = ck
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type sessionBody struct {
	Phase         string          `json:"phase"`
	User          *model.Identity `json:"user"`
	Authenticated bool            `json:"authenticated"`
}

type authBody struct {
	User        model.Identity `json:"user"`
	AccessToken string         `json:"access_token"`
	WorkspaceID string         `json:"workspace_id"`
}

type cartBody struct {
	Items     []model.CartItem `json:"items"`
	Total     float64          `json:"total"`
	ItemCount int              `json:"item_count"`
}

func (b *browser) signUp(email string) authBody {
	b.t.Helper()
	rec := b.do(http.MethodPost, "/v1/auth/signup", echo.Map{"email": email, "password": "secret1", "full_name": "Test User"})
	require.Equal(b.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out authBody
	decode(b.t, rec, &out)
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	a := newApp(t)

	rec := a.browser(t).do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = a.browser(t).do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_workspaces_active")
}

func TestAnonymousSessionAndGuards(t *testing.T) {
	a := newApp(t)
	br := a.browser(t)

	rec := br.do(http.MethodGet, "/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s sessionBody
	decode(t, rec, &s)
	assert.Equal(t, "ready", s.Phase)
	assert.False(t, s.Authenticated)
	assert.Nil(t, s.User)
	require.NotNil(t, br.cookie)

	rec = br.do(http.MethodGet, "/v1/cart", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fv1%2Fcart", rec.Header().Get(echo.HeaderLocation))

	rec = br.do(http.MethodGet, "/v1/admin/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestSignupCartAndCheckout(t *testing.T) {
	a := newApp(t)
	br := a.browser(t)
	auth := br.signUp("Shopper@Example.com ")
	assert.Equal(t, "shopper@example.com", auth.User.Email)
	assert.NotEmpty(t, auth.AccessToken)
	assert.Equal(t, br.cookie.Value, auth.WorkspaceID)

	var s sessionBody
	decode(t, br.do(http.MethodGet, "/v1/session", nil), &s)
	assert.True(t, s.Authenticated)

	var cart cartBody
	rec := br.do(http.MethodPost, "/v1/cart/items", echo.Map{"product_id": "p1", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = br.do(http.MethodPost, "/v1/cart/items", echo.Map{"product_id": "p1"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.ItemCount)
	assert.InDelta(t, 75.0, cart.Total, 1e-9)

	rec = br.do(http.MethodPatch, "/v1/cart/items/"+cart.Items[0].ID, echo.Map{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var toasts []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	decode(t, br.do(http.MethodGet, "/v1/toasts", nil), &toasts)
	require.NotEmpty(t, toasts)
	last := toasts[len(toasts)-1]
	assert.Equal(t, "error", last.Type)
	assert.Contains(t, last.Message, "quantity")

	rec = br.do(http.MethodPost, "/v1/orders", echo.Map{"shipping_address": echo.Map{"line1": "1 Main St"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order model.Order
	decode(t, rec, &order)
	assert.Equal(t, model.OrderPending, order.Status)
	assert.InDelta(t, 75.0, order.Total, 1e-9)
	assert.JSONEq(t, string(order.ShippingAddress), string(order.BillingAddress))

	decode(t, br.do(http.MethodGet, "/v1/cart", nil), &cart)
	assert.Empty(t, cart.Items)

	var orders struct {
		Items []model.Order `json:"items"`
	}
	decode(t, br.do(http.MethodGet, "/v1/orders", nil), &orders)
	require.Len(t, orders.Items, 1)
	assert.Equal(t, order.ID, orders.Items[0].ID)

	rec = br.do(http.MethodPost, "/v1/orders", echo.Map{"shipping_address": echo.Map{"line1": "1 Main St"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cart is empty")
}

func TestLogoutThenLoginRestoresRemoteCart(t *testing.T) {
	a := newApp(t)
	br := a.browser(t)
	br.signUp("back@example.com")
	require.Equal(t, http.StatusOK, br.do(http.MethodPost, "/v1/cart/items", echo.Map{"product_id": "p2", "quantity": 4}).Code)

	assert.Equal(t, http.StatusNoContent, br.do(http.MethodPost, "/v1/auth/logout", nil).Code)
	var s sessionBody
	decode(t, br.do(http.MethodGet, "/v1/session", nil), &s)
	assert.False(t, s.Authenticated)
	assert.Equal(t, http.StatusSeeOther, br.do(http.MethodGet, "/v1/cart", nil).Code)

	rec := br.do(http.MethodPost, "/v1/auth/login", echo.Map{"email": "back@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cart cartBody
	decode(t, br.do(http.MethodGet, "/v1/cart?reload=true", nil), &cart)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 4, cart.ItemCount)
}

func TestLoginWithWrongPassword(t *testing.T) {
	a := newApp(t)
	a.browser(t).signUp("who@example.com")

	rec := a.browser(t).do(http.MethodPost, "/v1/auth/login", echo.Map{"email": "who@example.com", "password": "nope-nope"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())
}

func TestSignupValidation(t *testing.T) {
	a := newApp(t)

	rec := a.browser(t).do(http.MethodPost, "/v1/auth/signup", echo.Map{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.browser(t).do(http.MethodPost, "/v1/auth/signup", echo.Map{"email": "x@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	a.browser(t).signUp("dup@example.com")
	rec = a.browser(t).do(http.MethodPost, "/v1/auth/signup", echo.Map{"email": "dup@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBearerClientAndProfile(t *testing.T) {
	a := newApp(t)
	auth := a.browser(t).signUp("api@example.com")

	api := a.browser(t)
	api.bearer = auth.AccessToken
	rec := api.do(http.MethodPatch, "/v1/me/profile", echo.Map{"full_name": "Api Person"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/v1/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		User    model.Identity `json:"user"`
		Profile model.Profile  `json:"profile"`
	}
	decode(t, rec, &me)
	assert.Equal(t, "Api Person", me.User.Metadata.FullName)
	assert.Equal(t, "Api Person", me.Profile.FullName)
	assert.Nil(t, api.cookie)
}

func TestRefreshRotatesToken(t *testing.T) {
	a := newApp(t)
	br := a.browser(t)
	br.signUp("rot@example.com")

	rec := br.do(http.MethodPost, "/v1/auth/refresh", echo.Map{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first struct {
		RefreshToken string `json:"refresh_token"`
	}
	decode(t, rec, &first)

	rec = br.do(http.MethodPost, "/v1/auth/refresh", echo.Map{"refresh_token": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var s sessionBody
	decode(t, br.do(http.MethodGet, "/v1/session", nil), &s)
	assert.True(t, s.Authenticated)
}

func TestCatalog(t *testing.T) {
	a := newApp(t)
	br := a.browser(t)

	var list struct {
		Items []model.Product `json:"items"`
	}
	decode(t, br.do(http.MethodGet, "/v1/products", nil), &list)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "p2", list.Items[0].ID)

	decode(t, br.do(http.MethodGet, "/v1/products?featured=true", nil), &list)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "desk-lamp", list.Items[0].Slug)

	rec := br.do(http.MethodGet, "/v1/products/notebook", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, br.do(http.MethodGet, "/v1/products/nope", nil).Code)

	var cats struct {
		Items []model.Category `json:"items"`
	}
	decode(t, br.do(http.MethodGet, "/v1/categories", nil), &cats)
	require.Len(t, cats.Items, 2)
	assert.Equal(t, "Lighting", cats.Items[0].Name)
}

func TestReviewsAreOwnedByAuthor(t *testing.T) {
	a := newApp(t)
	author := a.browser(t)
	author.signUp("author@example.com")
	other := a.browser(t)
	other.signUp("other@example.com")

	rec := author.do(http.MethodPost, "/v1/products/p1/reviews", echo.Map{"rating": 4, "comment": "bright"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r model.Review
	decode(t, rec, &r)

	assert.Equal(t, http.StatusBadRequest, author.do(http.MethodPost, "/v1/products/p1/reviews", echo.Map{"rating": 9}).Code)
	assert.Equal(t, http.StatusForbidden, other.do(http.MethodPut, "/v1/reviews/"+r.ID, echo.Map{"rating": 1}).Code)
	assert.Equal(t, http.StatusForbidden, other.do(http.MethodDelete, "/v1/reviews/"+r.ID, nil).Code)
	assert.Equal(t, http.StatusOK, author.do(http.MethodPut, "/v1/reviews/"+r.ID, echo.Map{"rating": 5}).Code)
	assert.Equal(t, http.StatusNoContent, author.do(http.MethodDelete, "/v1/reviews/"+r.ID, nil).Code)
}

func TestAdminConsole(t *testing.T) {
	a := newApp(t)
	admin := a.browser(t)
	auth := admin.signUp("ops@example.com")
	shopper := a.browser(t)
	shopper.signUp("buyer@example.com")

	assert.Equal(t, http.StatusSeeOther, admin.do(http.MethodGet, "/v1/admin/dashboard", nil).Code)
	a.mem.Users.SetRole(auth.User.ID, "ADMIN")
	a.reg.Evict(admin.cookie.Value)

	rec := admin.do(http.MethodPost, "/v1/admin/products", echo.Map{
		"name": "Floor Lamp", "slug": "floor-lamp", "price": 80, "stock": 2,
		"images": []echo.Map{{"url": "https://img.example.com/a.jpg"}, {"url": "https://img.example.com/b.jpg"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p model.Product
	decode(t, rec, &p)
	require.Len(t, p.Images, 2)
	assert.Equal(t, 1, p.Images[1].Position)

	rec = admin.do(http.MethodPost, "/v1/admin/products", echo.Map{"name": "Again", "slug": "floor-lamp", "price": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = admin.do(http.MethodPut, "/v1/admin/products/"+p.ID, echo.Map{"price": 70})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &p)
	assert.InDelta(t, 70.0, p.Price, 1e-9)

	require.Equal(t, http.StatusOK, shopper.do(http.MethodPost, "/v1/cart/items", echo.Map{"product_id": "p2", "quantity": 2}).Code)
	rec = shopper.do(http.MethodPost, "/v1/orders", echo.Map{"shipping_address": echo.Map{"city": "Oslo"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var order model.Order
	decode(t, rec, &order)

	rec = admin.do(http.MethodPatch, "/v1/admin/orders/"+order.ID+"/status", echo.Map{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = admin.do(http.MethodPatch, "/v1/admin/orders/"+order.ID+"/status", echo.Map{"status": "SHIPPED"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = admin.do(http.MethodGet, "/v1/admin/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.DashboardStats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalOrders)
	assert.Equal(t, 2, stats.TotalCustomers)
	assert.Equal(t, 3, stats.TotalProducts)
	assert.Equal(t, 2, stats.LowStockProducts)
	assert.InDelta(t, 9.0, stats.TotalRevenue, 1e-9)
	require.Len(t, stats.RecentOrders, 1)
	assert.Equal(t, model.OrderShipped, stats.RecentOrders[0].Status)

	var customers struct {
		Items []model.Profile `json:"items"`
	}
	decode(t, admin.do(http.MethodGet, "/v1/admin/customers", nil), &customers)
	assert.Len(t, customers.Items, 2)

	assert.Equal(t, http.StatusNoContent, admin.do(http.MethodDelete, "/v1/admin/products/"+p.ID, nil).Code)
	assert.Equal(t, http.StatusSeeOther, shopper.do(http.MethodGet, "/v1/admin/orders", nil).Code)
}
