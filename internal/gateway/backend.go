package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
)

// Narrow views of the repositories the gateway fronts.  The MySQL
// repositories satisfy them; tests use the in-memory versions in
// gatewaytest.
type (
	UserStore interface {
		Create(ctx context.Context, email, password, role string, meta model.Metadata, cost int) (model.Credential, error)
		GetByEmail(ctx context.Context, email string) (model.Credential, error)
		GetByID(ctx context.Context, id string) (model.Credential, error)
		UpdateMetadata(ctx context.Context, id string, meta model.Metadata) error
		Delete(ctx context.Context, id string) error
	}

	TokenStore interface {
		StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
		ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
		RevokeByHash(ctx context.Context, tokenHash string) error
		RevokeAllForUser(ctx context.Context, userID string) error
	}

	ProfileStore interface {
		Upsert(ctx context.Context, id string, fields model.ProfileFields) error
		Get(ctx context.Context, id string) (model.Profile, error)
		List(ctx context.Context, limit, offset int) ([]model.Profile, error)
		Count(ctx context.Context) (int, error)
	}

	CartStore interface {
		ListByUser(ctx context.Context, userID string) ([]model.CartItem, error)
		Upsert(ctx context.Context, userID, productID string, quantity int) error
		UpdateQuantity(ctx context.Context, userID, itemID string, quantity int) error
		Delete(ctx context.Context, userID, itemID string) error
		DeleteAllForUser(ctx context.Context, userID string) error
	}

	ProductStore interface {
		List(ctx context.Context, f model.ProductFilter) ([]model.Product, error)
		GetBySlug(ctx context.Context, slug string) (model.Product, error)
		Create(ctx context.Context, in model.ProductInput) (model.Product, error)
		Update(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error)
		Delete(ctx context.Context, id string) error
		Count(ctx context.Context) (total, lowStock int, err error)
	}

	TaxonomyStore interface {
		ListCategories(ctx context.Context) ([]model.Category, error)
		ListBrands(ctx context.Context) ([]model.Brand, error)
	}

	OrderStore interface {
		ListByUser(ctx context.Context, userID string) ([]model.Order, error)
		ListAll(ctx context.Context, limit, offset int) ([]model.Order, error)
		Get(ctx context.Context, id, userID string) (model.Order, error)
		Create(ctx context.Context, in model.OrderInput) (model.Order, error)
		UpdateStatus(ctx context.Context, id, status string) error
		Totals(ctx context.Context) (count int, revenue float64, err error)
	}

	ReviewStore interface {
		Create(ctx context.Context, userID, productID string, rating int, comment string) (model.Review, error)
		Update(ctx context.Context, userID, id string, rating int, comment string) (model.Review, error)
		Delete(ctx context.Context, userID, id string) error
	}
)

// EventSink receives storefront events after successful writes.
type EventSink interface {
	Publish(ev queue.StorefrontEvent)
}

// Deps bundles the stores a Backend fronts.  Users, Tokens, Profiles,
// Carts and Sessions are required; the rest may be nil when a deployment
// (or a test) does not serve the corresponding routes.
type Deps struct {
	Users    UserStore
	Tokens   TokenStore
	Profiles ProfileStore
	Carts    CartStore
	Products ProductStore
	Taxonomy TaxonomyStore
	Orders   OrderStore
	Reviews  ReviewStore
	Sessions SessionStore
	Events   EventSink
	Logger   *slog.Logger
}

// Options configures token issuance and password hashing.
type Options struct {
	Secret         string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
	DefaultRole    string // role given to new credentials, "CUSTOMER" when empty
}

// Backend is shared by every Client.  Its own methods serve the public
// catalog and the admin console; anything scoped to a signed-in identity
// lives on Client.
type Backend struct {
	d    Deps
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

var (
	ErrWeakPassword  = errors.New("password must be at least 6 characters")
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrInvalidQty    = errors.New("quantity must be at least 1")
	ErrInvalidStatus = errors.New("unknown order status")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrEmptyCart     = errors.New("cart is empty")
	ErrNotConfigured = errors.New("store not configured")
)

func NewBackend(d Deps, opts Options) *Backend {
	if d.Users == nil || d.Tokens == nil || d.Profiles == nil || d.Carts == nil || d.Sessions == nil {
		panic("gateway: missing required store")
	}
	if opts.DefaultRole == "" {
		opts.DefaultRole = "CUSTOMER"
	}
	if opts.AccessTTLMin <= 0 {
		opts.AccessTTLMin = 15
	}
	if opts.RefreshTTLDays <= 0 {
		opts.RefreshTTLDays = 7
	}
	return &Backend{d: d, opts: opts, log: logging.OrDiscard(d.Logger), now: time.Now}
}

// NewClient returns the gateway client of one workspace.
func (b *Backend) NewClient(workspaceID string) *Client {
	return &Client{b: b, workspaceID: workspaceID, listeners: map[uint64]AuthChangeFunc{}}
}

func (b *Backend) publish(ev queue.StorefrontEvent) {
	if b.d.Events == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now().UTC()
	}
	b.d.Events.Publish(ev)
}

// ListProducts returns catalog products matching f, newest first.
func (b *Backend) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, error) {
	if b.d.Products == nil {
		return nil, ErrNotConfigured
	}
	return b.d.Products.List(ctx, f)
}

// ProductBySlug returns one product with its images and reviews.
func (b *Backend) ProductBySlug(ctx context.Context, slug string) (model.Product, error) {
	if b.d.Products == nil {
		return model.Product{}, ErrNotConfigured
	}
	return b.d.Products.GetBySlug(ctx, slug)
}

func (b *Backend) ListCategories(ctx context.Context) ([]model.Category, error) {
	if b.d.Taxonomy == nil {
		return nil, ErrNotConfigured
	}
	return b.d.Taxonomy.ListCategories(ctx)
}

func (b *Backend) ListBrands(ctx context.Context) ([]model.Brand, error) {
	if b.d.Taxonomy == nil {
		return nil, ErrNotConfigured
	}
	return b.d.Taxonomy.ListBrands(ctx)
}

func (b *Backend) CreateProduct(ctx context.Context, in model.ProductInput) (model.Product, error) {
	if b.d.Products == nil {
		return model.Product{}, ErrNotConfigured
	}
	return b.d.Products.Create(ctx, in)
}

func (b *Backend) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	if b.d.Products == nil {
		return model.Product{}, ErrNotConfigured
	}
	return b.d.Products.Update(ctx, id, patch)
}

func (b *Backend) DeleteProduct(ctx context.Context, id string) error {
	if b.d.Products == nil {
		return ErrNotConfigured
	}
	return b.d.Products.Delete(ctx, id)
}

// ListAllOrders pages through every order for the admin console.
func (b *Backend) ListAllOrders(ctx context.Context, limit, offset int) ([]model.Order, error) {
	if b.d.Orders == nil {
		return nil, ErrNotConfigured
	}
	return b.d.Orders.ListAll(ctx, limit, offset)
}

// UpdateOrderStatus moves an order to status.
func (b *Backend) UpdateOrderStatus(ctx context.Context, id, status string) error {
	if b.d.Orders == nil {
		return ErrNotConfigured
	}
	if !model.ValidOrderStatus(status) {
		return ErrInvalidStatus
	}
	if err := b.d.Orders.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	b.publish(queue.StorefrontEvent{Type: queue.EventOrderUpdated, OrderID: id, Status: status})
	return nil
}

// ListCustomers returns customer profiles, newest first.
func (b *Backend) ListCustomers(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	if limit <= 0 {
		limit = 50
	}
	return b.d.Profiles.List(ctx, limit, offset)
}

// Dashboard aggregates the admin overview.
func (b *Backend) Dashboard(ctx context.Context) (model.DashboardStats, error) {
	if b.d.Orders == nil || b.d.Products == nil {
		return model.DashboardStats{}, ErrNotConfigured
	}
	var (
		st  model.DashboardStats
		err error
	)
	if st.TotalOrders, st.TotalRevenue, err = b.d.Orders.Totals(ctx); err != nil {
		return st, fmt.Errorf("order totals: %w", err)
	}
	if st.TotalCustomers, err = b.d.Profiles.Count(ctx); err != nil {
		return st, fmt.Errorf("customer count: %w", err)
	}
	if st.TotalProducts, st.LowStockProducts, err = b.d.Products.Count(ctx); err != nil {
		return st, fmt.Errorf("product count: %w", err)
	}
	if st.RecentOrders, err = b.d.Orders.ListAll(ctx, 5, 0); err != nil {
		return st, fmt.Errorf("recent orders: %w", err)
	}
	return st, nil
}
