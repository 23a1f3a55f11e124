package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
)

// Client is one workspace's connection to the backend.  It holds the
// current session, persists it in the SessionStore under the workspace id
// and notifies subscribers on every auth change.  All row-scoped calls act
// as the signed-in identity only.
type Client struct {
	b           *Backend
	workspaceID string

	mu        sync.Mutex
	current   *Session
	gen       uint64 // bumped by every setCurrent
	listeners map[uint64]AuthChangeFunc
	nextID    uint64
}

var _ Gateway = (*Client)(nil)
var _ CredentialDeleter = (*Client)(nil)

// WorkspaceID returns the id the client persists its session under.
func (c *Client) WorkspaceID() string { return c.workspaceID }

// CurrentSession returns a copy of the in-memory session without any I/O.
func (c *Client) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.current)
}

// OnSessionChange registers fn for every subsequent auth change.
func (c *Client) OnSessionChange(fn AuthChangeFunc) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// emit calls listeners outside the lock in registration order.
func (c *Client) emit(ev Event, s *Session) {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]AuthChangeFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.listeners[id])
	}
	c.mu.Unlock()

	metrics.AuthEvent(string(ev))
	for _, fn := range fns {
		fn(ev, copySession(s))
	}
}

func (c *Client) setCurrent(s *Session) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.current
	c.current = copySession(s)
	c.gen++
	return prev
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// GetCurrentSession restores the persisted session of this workspace.  An
// expired access token is rotated with the stored refresh token; a session
// whose credential disappeared or whose refresh token is no longer valid is
// dropped.  It emits INITIAL_SESSION with the result.  When a sign-in,
// sign-out or refresh lands while the lookup is in flight, that session
// stands: the restored one is discarded, nothing is emitted and the current
// session is returned.
func (c *Client) GetCurrentSession(ctx context.Context) (*Session, error) {
	gen := c.generation()
	st, err := c.b.d.Sessions.Load(ctx, c.workspaceID)
	if err != nil {
		return nil, err
	}
	s, err := c.restore(ctx, st, gen)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen != gen {
		cur := copySession(c.current)
		c.mu.Unlock()
		c.discardRestored(ctx, st, s, cur)
		return cur, nil
	}
	c.current = copySession(s)
	c.mu.Unlock()
	c.emit(EventInitialSession, s)
	return copySession(s), nil
}

func (c *Client) restore(ctx context.Context, st *StoredSession, gen uint64) (*Session, error) {
	if st == nil {
		return nil, nil
	}
	cred, err := c.b.d.Users.GetByID(ctx, st.UserID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !cred.IsActive) {
		c.forget(ctx, gen)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if c.b.now().Before(st.ExpiresAt) {
		return &Session{
			Identity:     *cred.Identity(),
			AccessToken:  st.AccessToken,
			RefreshToken: st.RefreshToken,
			ExpiresAt:    st.ExpiresAt,
		}, nil
	}
	s, err := c.rotate(ctx, cred, st.RefreshToken)
	if errors.Is(err, ErrInvalidRefresh) {
		c.forget(ctx, gen)
		return nil, nil
	}
	return s, err
}

// discardRestored undoes what a superseded lookup left behind.  A rotation
// persisted the restored pair, so the store is pointed back at cur.
func (c *Client) discardRestored(ctx context.Context, st *StoredSession, s, cur *Session) {
	if s == nil || (cur != nil && cur.RefreshToken == s.RefreshToken) {
		return
	}
	if err := c.b.d.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(s.RefreshToken)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		c.b.log.Warn("revoke superseded session failed", "workspace", c.workspaceID, "err", err)
	}
	if st != nil && st.RefreshToken == s.RefreshToken {
		return
	}
	var err error
	if cur == nil {
		err = c.b.d.Sessions.Delete(ctx, c.workspaceID)
	} else {
		stored := StoredSession{UserID: cur.Identity.ID, AccessToken: cur.AccessToken, RefreshToken: cur.RefreshToken, ExpiresAt: cur.ExpiresAt}
		err = c.b.d.Sessions.Save(ctx, c.workspaceID, stored, time.Duration(c.b.opts.RefreshTTLDays)*24*time.Hour)
	}
	if err != nil {
		c.b.log.Warn("re-persist session failed", "workspace", c.workspaceID, "err", err)
	}
}

// forget drops the persisted session unless the client moved on since gen.
func (c *Client) forget(ctx context.Context, gen uint64) {
	if c.generation() != gen {
		return
	}
	if err := c.b.d.Sessions.Delete(ctx, c.workspaceID); err != nil {
		c.b.log.Warn("drop stale session failed", "workspace", c.workspaceID, "err", err)
	}
}

// SignInWithCredentials verifies email and password and establishes a new
// session.  Unknown emails and wrong passwords are indistinguishable.
func (c *Client) SignInWithCredentials(ctx context.Context, email, password string) (*Session, error) {
	cred, err := c.b.d.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if !cred.IsActive || !utils.VerifyPassword(cred.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	s, err := c.establish(ctx, cred)
	if err != nil {
		return nil, err
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventSignedIn, UserID: cred.ID, Email: cred.Email, WorkspaceID: c.workspaceID})
	c.emit(EventSignedIn, s)
	return copySession(s), nil
}

// CreateCredential registers a new account and signs it in, emitting
// SIGNED_IN.  It does not touch the profile table.
func (c *Client) CreateCredential(ctx context.Context, email, password string, meta model.Metadata) (*Session, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	cred, err := c.b.d.Users.Create(ctx, email, password, c.b.opts.DefaultRole, meta, c.b.opts.BcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, ErrEmailExists
	}
	if err != nil {
		return nil, fmt.Errorf("create credential: %w", err)
	}
	s, err := c.establish(ctx, cred)
	if err != nil {
		return nil, err
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventSignedUp, UserID: cred.ID, Email: cred.Email, WorkspaceID: c.workspaceID})
	c.emit(EventSignedIn, s)
	return copySession(s), nil
}

// DeleteCredential removes the signed-in credential together with its
// tokens and signs the client out.  Only the caller's own id is accepted.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	me, err := c.requireUser()
	if err != nil {
		return err
	}
	if me.ID != id {
		return ErrForbidden
	}
	if err := c.b.d.Tokens.RevokeAllForUser(ctx, id); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	if err := c.b.d.Users.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	c.setCurrent(nil)
	if err := c.b.d.Sessions.Delete(ctx, c.workspaceID); err != nil {
		c.b.log.Warn("drop deleted session failed", "workspace", c.workspaceID, "err", err)
	}
	c.emit(EventSignedOut, nil)
	return nil
}

// UpsertProfile creates or merges the profile row keyed by id.  A client
// may only write its own profile.
func (c *Client) UpsertProfile(ctx context.Context, id string, fields model.ProfileFields) error {
	me, err := c.requireUser()
	if err != nil {
		return err
	}
	if me.ID != id {
		return ErrForbidden
	}
	if err := c.b.d.Profiles.Upsert(ctx, id, fields); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// UpdateIdentityMetadata replaces the auth-side metadata of the signed-in
// identity and emits USER_UPDATED.
func (c *Client) UpdateIdentityMetadata(ctx context.Context, meta model.Metadata) error {
	me, err := c.requireUser()
	if err != nil {
		return err
	}
	if err := c.b.d.Users.UpdateMetadata(ctx, me.ID, meta); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	c.mu.Lock()
	var s *Session
	if c.current != nil && c.current.Identity.ID == me.ID {
		c.current.Identity.Metadata = meta
		s = copySession(c.current)
	}
	c.mu.Unlock()
	if s == nil {
		// Signed out while the write was in flight.
		return nil
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventUserUpdated, UserID: me.ID, WorkspaceID: c.workspaceID})
	c.emit(EventUserUpdated, s)
	return nil
}

// SignOut drops the session locally first, then revokes its refresh token
// and deletes the persisted copy.  SIGNED_OUT is emitted even when the
// remote cleanup fails.
func (c *Client) SignOut(ctx context.Context) error {
	prev := c.setCurrent(nil)
	var errs []error
	if prev != nil {
		if err := c.b.d.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(prev.RefreshToken)); err != nil && !errors.Is(err, repository.ErrNotFound) {
			errs = append(errs, fmt.Errorf("revoke refresh token: %w", err))
		}
		c.b.publish(queue.StorefrontEvent{Type: queue.EventSignedOut, UserID: prev.Identity.ID, WorkspaceID: c.workspaceID})
	}
	if err := c.b.d.Sessions.Delete(ctx, c.workspaceID); err != nil {
		errs = append(errs, err)
	}
	c.emit(EventSignedOut, nil)
	return errors.Join(errs...)
}

// RefreshSession rotates the refresh token.  An empty raw token means the
// one held by the current session.  A signed-in client keeps its identity
// and subscribers see TOKEN_REFRESHED; an anonymous client adopting another
// session's token is signed in and subscribers see SIGNED_IN.
func (c *Client) RefreshSession(ctx context.Context, raw string) (*Session, error) {
	cur := c.CurrentSession()
	if raw == "" {
		if cur == nil {
			return nil, ErrNotAuthenticated
		}
		raw = cur.RefreshToken
	}
	userID, err := c.b.d.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidRefresh
	}
	if err != nil {
		return nil, fmt.Errorf("validate refresh: %w", err)
	}
	if cur != nil && cur.Identity.ID != userID {
		return nil, ErrForbidden
	}
	cred, err := c.b.d.Users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !cred.IsActive) {
		return nil, ErrInvalidRefresh
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	s, err := c.rotate(ctx, cred, raw)
	if err != nil {
		return nil, err
	}
	ev := EventTokenRefreshed
	if prev := c.setCurrent(s); prev == nil {
		ev = EventSignedIn
		c.b.publish(queue.StorefrontEvent{Type: queue.EventSignedIn, UserID: cred.ID, Email: cred.Email, WorkspaceID: c.workspaceID})
	}
	c.emit(ev, s)
	return copySession(s), nil
}

// rotate revokes raw and issues a fresh token pair for cred.
func (c *Client) rotate(ctx context.Context, cred model.Credential, raw string) (*Session, error) {
	hash := utils.HashRefreshRaw(raw)
	if _, err := c.b.d.Tokens.ValidateRefresh(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, fmt.Errorf("validate refresh: %w", err)
	}
	if err := c.b.d.Tokens.RevokeByHash(ctx, hash); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("revoke refresh: %w", err)
	}
	return c.issue(ctx, cred)
}

// establish issues a session for cred, replacing any previous one.
func (c *Client) establish(ctx context.Context, cred model.Credential) (*Session, error) {
	s, err := c.issue(ctx, cred)
	if err != nil {
		return nil, err
	}
	if prev := c.setCurrent(s); prev != nil && prev.RefreshToken != "" {
		if err := c.b.d.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(prev.RefreshToken)); err != nil && !errors.Is(err, repository.ErrNotFound) {
			c.b.log.Warn("revoke replaced session failed", "workspace", c.workspaceID, "err", err)
		}
	}
	return s, nil
}

// issue signs an access token, stores a refresh token hash and persists
// the pair under the workspace id.
func (c *Client) issue(ctx context.Context, cred model.Credential) (*Session, error) {
	o := c.b.opts
	at, err := utils.NewAccessToken(o.Secret, cred.ID, cred.Role, cred.Email, c.workspaceID, o.AccessTTLMin)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	rt, err := utils.NewRefreshToken(o.RefreshTTLDays)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if err := c.b.d.Tokens.StoreRefresh(ctx, cred.ID, utils.HashRefreshRaw(rt.Raw), rt.Exp); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	st := StoredSession{UserID: cred.ID, AccessToken: at.Token, RefreshToken: rt.Raw, ExpiresAt: at.Exp}
	if err := c.b.d.Sessions.Save(ctx, c.workspaceID, st, time.Until(rt.Exp)); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return &Session{Identity: *cred.Identity(), AccessToken: at.Token, RefreshToken: rt.Raw, ExpiresAt: at.Exp}, nil
}

func (c *Client) requireUser() (model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return model.Identity{}, ErrNotAuthenticated
	}
	return c.current.Identity, nil
}

func (c *Client) requireSelf(userID string) (model.Identity, error) {
	me, err := c.requireUser()
	if err != nil {
		return me, err
	}
	if me.ID != userID {
		return me, ErrForbidden
	}
	return me, nil
}

// ListCartItems returns userID's line items newest first with product
// snapshots.  userID must be the signed-in identity.
func (c *Client) ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	if _, err := c.requireSelf(userID); err != nil {
		return nil, err
	}
	return c.b.d.Carts.ListByUser(ctx, userID)
}

// UpsertCartItem adds quantity of productID, merging into an existing line.
func (c *Client) UpsertCartItem(ctx context.Context, userID, productID string, quantity int) error {
	if _, err := c.requireSelf(userID); err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQty
	}
	if err := c.b.d.Carts.Upsert(ctx, userID, productID, quantity); err != nil {
		return fmt.Errorf("upsert cart item: %w", err)
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventCartChanged, UserID: userID, ProductID: productID, Quantity: quantity, WorkspaceID: c.workspaceID})
	return nil
}

// UpdateCartItemQuantity sets the quantity of one of the caller's lines.
func (c *Client) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	me, err := c.requireUser()
	if err != nil {
		return err
	}
	if quantity < 1 {
		return ErrInvalidQty
	}
	if err := c.b.d.Carts.UpdateQuantity(ctx, me.ID, itemID, quantity); err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventCartChanged, UserID: me.ID, Quantity: quantity, WorkspaceID: c.workspaceID})
	return nil
}

// DeleteCartItem removes one of the caller's lines.
func (c *Client) DeleteCartItem(ctx context.Context, itemID string) error {
	me, err := c.requireUser()
	if err != nil {
		return err
	}
	if err := c.b.d.Carts.Delete(ctx, me.ID, itemID); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventCartChanged, UserID: me.ID, WorkspaceID: c.workspaceID})
	return nil
}

// DeleteAllCartItems empties userID's cart.
func (c *Client) DeleteAllCartItems(ctx context.Context, userID string) error {
	if _, err := c.requireSelf(userID); err != nil {
		return err
	}
	if err := c.b.d.Carts.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventCartCleared, UserID: userID, WorkspaceID: c.workspaceID})
	return nil
}

// Profile returns the signed-in identity's profile row.
func (c *Client) Profile(ctx context.Context) (model.Profile, error) {
	me, err := c.requireUser()
	if err != nil {
		return model.Profile{}, err
	}
	return c.b.d.Profiles.Get(ctx, me.ID)
}

// ListOrders returns the caller's orders, newest first.
func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	me, err := c.requireUser()
	if err != nil {
		return nil, err
	}
	if c.b.d.Orders == nil {
		return nil, ErrNotConfigured
	}
	return c.b.d.Orders.ListByUser(ctx, me.ID)
}

// GetOrder returns one of the caller's orders.  Orders of other users are
// reported as not found.
func (c *Client) GetOrder(ctx context.Context, id string) (model.Order, error) {
	me, err := c.requireUser()
	if err != nil {
		return model.Order{}, err
	}
	if c.b.d.Orders == nil {
		return model.Order{}, ErrNotConfigured
	}
	return c.b.d.Orders.Get(ctx, id, me.ID)
}

// PlaceOrder turns the caller's current cart into a pending order at the
// current product prices.  The cart itself is left untouched; the caller
// clears it through Cart State so the local list reloads.
func (c *Client) PlaceOrder(ctx context.Context, shipping, billing json.RawMessage) (model.Order, error) {
	me, err := c.requireUser()
	if err != nil {
		return model.Order{}, err
	}
	if c.b.d.Orders == nil {
		return model.Order{}, ErrNotConfigured
	}
	items, err := c.b.d.Carts.ListByUser(ctx, me.ID)
	if err != nil {
		return model.Order{}, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return model.Order{}, ErrEmptyCart
	}
	in := model.OrderInput{UserID: me.ID, ShippingAddress: shipping, BillingAddress: billing}
	for _, it := range items {
		in.Items = append(in.Items, model.OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Product.Price})
		in.Total += it.Subtotal()
	}
	o, err := c.b.d.Orders.Create(ctx, in)
	if err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	c.b.publish(queue.StorefrontEvent{Type: queue.EventOrderPlaced, UserID: me.ID, OrderID: o.ID, Status: o.Status, Total: o.Total, WorkspaceID: c.workspaceID})
	return o, nil
}

// CreateReview posts a review of productID as the caller.
func (c *Client) CreateReview(ctx context.Context, productID string, rating int, comment string) (model.Review, error) {
	me, err := c.requireUser()
	if err != nil {
		return model.Review{}, err
	}
	if c.b.d.Reviews == nil {
		return model.Review{}, ErrNotConfigured
	}
	if !model.ValidRating(rating) {
		return model.Review{}, ErrInvalidRating
	}
	return c.b.d.Reviews.Create(ctx, me.ID, productID, rating, comment)
}

// UpdateReview edits one of the caller's reviews.
func (c *Client) UpdateReview(ctx context.Context, id string, rating int, comment string) (model.Review, error) {
	me, err := c.requireUser()
	if err != nil {
		return model.Review{}, err
	}
	if c.b.d.Reviews == nil {
		return model.Review{}, ErrNotConfigured
	}
	if !model.ValidRating(rating) {
		return model.Review{}, ErrInvalidRating
	}
	return c.b.d.Reviews.Update(ctx, me.ID, id, rating, comment)
}

// DeleteReview removes one of the caller's reviews.
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	me, err := c.requireUser()
	if err != nil {
		return err
	}
	if c.b.d.Reviews == nil {
		return ErrNotConfigured
	}
	return c.b.d.Reviews.Delete(ctx, me.ID, id)
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
