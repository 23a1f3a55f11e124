// Package cart holds the Cart State of one client.  Every mutation is a
// gateway write followed by a full reload of the list; the local items are
// never patched in place.  The container follows Session State: a new
// identity invalidates and reloads, no identity empties the cart without a
// remote call.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/session"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be a positive integer")
	ErrNotAuthenticated = gateway.ErrNotAuthenticated
	ErrClosed           = errors.New("cart closed")
)

// Options tune a State.
type Options struct {
	// ReloadTimeout bounds reloads triggered by identity changes, which
	// have no request context of their own.
	ReloadTimeout time.Duration
	Logger        *slog.Logger
}

// View is what the presentation layer renders.
type View struct {
	Items     []model.CartItem `json:"items"`
	Total     float64          `json:"total"`
	ItemCount int              `json:"item_count"`
	Loading   bool             `json:"loading"`
	Error     string           `json:"error,omitempty"`
}

// State is the Cart State container.  The mutex only protects fields;
// operations are not serialized against each other.
type State struct {
	gw      gateway.Carts
	opts    Options
	log     *slog.Logger
	dispose func()

	mu       sync.Mutex
	userID   string // "" when no identity
	seen     uint64 // Seq of the newest session snapshot applied
	epoch    uint64 // bumped on every identity change
	items    []model.CartItem
	err      error
	inflight int    // list requests of the current epoch
	started  uint64 // sequence of the last started reload
	applied  uint64 // sequence of the last applied reload
	closed   bool
}

// New builds a cart bound to sess.  If sess already has an identity the
// cart loads it right away.
func New(gw gateway.Carts, sess *session.State, opts Options) *State {
	if gw == nil || sess == nil {
		panic("cart: nil dependency")
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = 5 * time.Second
	}
	c := &State{gw: gw, opts: opts, log: logging.OrDiscard(opts.Logger)}
	c.dispose = sess.Subscribe(c.onSession)
	if snap := sess.Snapshot(); snap.Identity != nil {
		c.onSession(session.Snapshot{}, snap)
	}
	return c
}

func (c *State) onSession(_, next session.Snapshot) {
	id := ""
	if next.Identity != nil {
		id = next.Identity.ID
	}
	c.mu.Lock()
	if c.closed || next.Seq <= c.seen {
		c.mu.Unlock()
		return
	}
	c.seen = next.Seq
	if id == c.userID {
		c.mu.Unlock()
		return
	}
	c.userID = id
	c.epoch++
	c.items = nil
	c.err = nil
	c.inflight = 0
	c.mu.Unlock()

	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ReloadTimeout)
	defer cancel()
	if err := c.reload(ctx); err != nil {
		c.log.Warn("cart reload after identity change failed", "user_id", id, "err", err)
	}
}

// Load replaces the items with the gateway's list.  Without an identity
// it does nothing.  On failure the previous items stay and Err is set.
func (c *State) Load(ctx context.Context) error {
	c.mu.Lock()
	anon := c.userID == ""
	c.mu.Unlock()
	if anon {
		return nil
	}
	err := c.reload(ctx)
	metrics.CartOp("load", err)
	return err
}

func (c *State) reload(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	uid, epoch := c.userID, c.epoch
	if uid == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	c.started++
	seq := c.started
	c.inflight++
	c.mu.Unlock()

	items, err := c.gw.ListCartItems(ctx, uid)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		c.log.Debug("dropping cart reload for a previous identity", "user_id", uid)
		return nil
	}
	c.inflight--
	if seq < c.applied {
		return nil
	}
	if err != nil {
		c.err = err
		return fmt.Errorf("load cart: %w", err)
	}
	c.items = items
	c.err = nil
	c.applied = seq
	return nil
}

func (c *State) currentUser() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	if c.userID == "" {
		return "", ErrNotAuthenticated
	}
	return c.userID, nil
}

// AddItem upserts quantity of productID and reloads.  Repeated calls for
// the same product merge into one line.
func (c *State) AddItem(ctx context.Context, productID string, quantity int) (err error) {
	defer func() { metrics.CartOp("add_item", err) }()
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	uid, err := c.currentUser()
	if err != nil {
		return err
	}
	if err := c.gw.UpsertCartItem(ctx, uid, productID, quantity); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return c.reload(ctx)
}

// UpdateQuantity sets a line's quantity and reloads.  Quantities below one
// are rejected before the gateway is called.
func (c *State) UpdateQuantity(ctx context.Context, itemID string, quantity int) (err error) {
	defer func() { metrics.CartOp("update_quantity", err) }()
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if _, err := c.currentUser(); err != nil {
		return err
	}
	if err := c.gw.UpdateCartItemQuantity(ctx, itemID, quantity); err != nil {
		return fmt.Errorf("update quantity: %w", err)
	}
	return c.reload(ctx)
}

// RemoveItem deletes a line and reloads.
func (c *State) RemoveItem(ctx context.Context, itemID string) (err error) {
	defer func() { metrics.CartOp("remove_item", err) }()
	if _, err := c.currentUser(); err != nil {
		return err
	}
	if err := c.gw.DeleteCartItem(ctx, itemID); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}
	return c.reload(ctx)
}

// ClearCart deletes every line of the current user and reloads.
func (c *State) ClearCart(ctx context.Context) (err error) {
	defer func() { metrics.CartOp("clear", err) }()
	uid, err := c.currentUser()
	if err != nil {
		return err
	}
	if err := c.gw.DeleteAllCartItems(ctx, uid); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return c.reload(ctx)
}

// Items returns a copy of the current lines.
func (c *State) Items() []model.CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.CartItem{}, c.items...)
}

// Total is Σ quantity × price over the current lines.
func (c *State) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.items)
}

// ItemCount is Σ quantity over the current lines.
func (c *State) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return count(c.items)
}

// Loading reports whether a list request for the current identity is in flight.
func (c *State) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID != "" && c.inflight > 0
}

// Err returns the error of the last failed load, nil after a successful one.
func (c *State) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// View captures every read in one consistent snapshot.
func (c *State) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Items:     append([]model.CartItem{}, c.items...),
		Total:     total(c.items),
		ItemCount: count(c.items),
		Loading:   c.userID != "" && c.inflight > 0,
	}
	if c.err != nil {
		v.Error = c.err.Error()
	}
	return v
}

// Close stops following the session.  Reloads still in flight are dropped.
func (c *State) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	c.mu.Unlock()
	c.dispose()
}

func total(items []model.CartItem) float64 {
	var t float64
	for _, it := range items {
		t += it.Subtotal()
	}
	return t
}

func count(items []model.CartItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
