// Package gatewaytest provides in-memory stand-ins for the gateway: Fake,
// a scriptable Gateway with per-method call counters, and memory-backed
// stores for exercising the real gateway.Client without MySQL or Redis.
package gatewaytest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/model"
)

// Method names accepted by Calls and Before.
const (
	GetCurrentSession      = "GetCurrentSession"
	SignInWithCredentials  = "SignInWithCredentials"
	CreateCredential       = "CreateCredential"
	DeleteCredential       = "DeleteCredential"
	UpsertProfile          = "UpsertProfile"
	UpdateIdentityMetadata = "UpdateIdentityMetadata"
	SignOut                = "SignOut"
	ListCartItems          = "ListCartItems"
	UpsertCartItem         = "UpsertCartItem"
	UpdateCartItemQuantity = "UpdateCartItemQuantity"
	DeleteCartItem         = "DeleteCartItem"
	DeleteAllCartItems     = "DeleteAllCartItems"
)

// ErrRemote is a stand-in for a network or server failure.
var ErrRemote = errors.New("remote failure")

type account struct {
	password string
	identity model.Identity
}

// Fake is an in-memory Gateway.  Cart upserts increment the quantity of
// an existing (user, product) line.  Hooks registered with Before run
// before the named method touches any state; a non-nil hook error is
// returned as the method's result.
type Fake struct {
	mu        sync.Mutex
	accounts  map[string]*account // by email
	profiles  map[string]model.ProfileFields
	products  map[string]model.Product
	items     map[string][]model.CartItem // by user id
	current   *gateway.Session
	gen       uint64 // bumped whenever current changes outside a lookup
	persisted *gateway.Session
	listeners map[int]gateway.AuthChangeFunc
	nextID    int
	calls     map[string]int
	hooks     map[string]func(ctx context.Context) error
	clock     time.Time
}

var _ gateway.Gateway = (*Fake)(nil)
var _ gateway.CredentialDeleter = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		accounts:  map[string]*account{},
		profiles:  map[string]model.ProfileFields{},
		products:  map[string]model.Product{},
		items:     map[string][]model.CartItem{},
		listeners: map[int]gateway.AuthChangeFunc{},
		calls:     map[string]int{},
		hooks:     map[string]func(ctx context.Context) error{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddAccount registers an existing credential.
func (f *Fake) AddAccount(email, password string, id model.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id.Email = email
	f.accounts[email] = &account{password: password, identity: id}
}

// AddProduct makes p available to cart upserts.
func (f *Fake) AddProduct(p model.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

// SetPrice changes a product's price as a server-side edit would.
func (f *Fake) SetPrice(productID string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[productID]
	p.Price = price
	f.products[productID] = p
}

// Persist makes GetCurrentSession restore a session for id.
func (f *Fake) Persist(id model.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = &gateway.Session{Identity: id, AccessToken: "restored"}
}

// Profile returns the stored profile fields of id.
func (f *Fake) Profile(id string) (model.ProfileFields, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	return p, ok
}

// Account returns the stored identity for email.
func (f *Fake) Account(email string) (model.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok {
		return model.Identity{}, false
	}
	return a.identity, true
}

// Rows returns the stored cart rows of userID, unaffected by hooks.
func (f *Fake) Rows(userID string) []model.CartItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLocked(userID)
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of invocations across all methods.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// ResetCalls zeroes every counter.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = map[string]int{}
}

// Before installs hook for method; nil removes it.
func (f *Fake) Before(method string, hook func(ctx context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if hook == nil {
		delete(f.hooks, method)
		return
	}
	f.hooks[method] = hook
}

// Fail makes every call to method return err until cleared with Before(method, nil).
func (f *Fake) Fail(method string, err error) {
	f.Before(method, func(context.Context) error { return err })
}

// Emit delivers an auth change as if it came from the backend.
func (f *Fake) Emit(ev gateway.Event, s *gateway.Session) {
	f.mu.Lock()
	f.current = s
	f.gen++
	f.mu.Unlock()
	f.emit(ev, s)
}

// Listeners returns the number of active subscriptions.
func (f *Fake) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *Fake) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hooks[method]
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (f *Fake) emit(ev gateway.Event, s *gateway.Session) {
	f.mu.Lock()
	ids := make([]int, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]gateway.AuthChangeFunc, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, f.listeners[id])
	}
	f.mu.Unlock()
	for _, fn := range fns {
		var cp *gateway.Session
		if s != nil {
			c := *s
			cp = &c
		}
		fn(ev, cp)
	}
}

func (f *Fake) GetCurrentSession(ctx context.Context) (*gateway.Session, error) {
	f.mu.Lock()
	gen := f.gen
	f.mu.Unlock()
	if err := f.enter(ctx, GetCurrentSession); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.gen != gen {
		// A sign-in or sign-out landed during the lookup and owns the result.
		s := f.current
		f.mu.Unlock()
		return copyFakeSession(s), nil
	}
	s := f.persisted
	f.current = s
	f.mu.Unlock()
	f.emit(gateway.EventInitialSession, s)
	return copyFakeSession(s), nil
}

func copyFakeSession(s *gateway.Session) *gateway.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (f *Fake) OnSessionChange(fn gateway.AuthChangeFunc) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *Fake) SignInWithCredentials(ctx context.Context, email, password string) (*gateway.Session, error) {
	if err := f.enter(ctx, SignInWithCredentials); err != nil {
		return nil, err
	}
	f.mu.Lock()
	a, ok := f.accounts[email]
	if !ok || a.password != password {
		f.mu.Unlock()
		return nil, gateway.ErrInvalidCredentials
	}
	s := &gateway.Session{Identity: a.identity, AccessToken: "at-" + a.identity.ID}
	f.current = s
	f.gen++
	f.mu.Unlock()
	f.emit(gateway.EventSignedIn, s)
	return s, nil
}

func (f *Fake) CreateCredential(ctx context.Context, email, password string, meta model.Metadata) (*gateway.Session, error) {
	if err := f.enter(ctx, CreateCredential); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if _, ok := f.accounts[email]; ok {
		f.mu.Unlock()
		return nil, gateway.ErrEmailExists
	}
	id := model.Identity{ID: uuid.NewString(), Email: email, Role: "CUSTOMER", Metadata: meta}
	f.accounts[email] = &account{password: password, identity: id}
	s := &gateway.Session{Identity: id, AccessToken: "at-" + id.ID}
	f.current = s
	f.gen++
	f.mu.Unlock()
	f.emit(gateway.EventSignedIn, s)
	return s, nil
}

func (f *Fake) DeleteCredential(ctx context.Context, id string) error {
	if err := f.enter(ctx, DeleteCredential); err != nil {
		return err
	}
	f.mu.Lock()
	for email, a := range f.accounts {
		if a.identity.ID == id {
			delete(f.accounts, email)
		}
	}
	f.current = nil
	f.gen++
	f.mu.Unlock()
	f.emit(gateway.EventSignedOut, nil)
	return nil
}

func (f *Fake) UpsertProfile(ctx context.Context, id string, fields model.ProfileFields) error {
	if err := f.enter(ctx, UpsertProfile); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.profiles[id]
	if fields.FullName != nil {
		cur.FullName = fields.FullName
	}
	if fields.AvatarURL != nil {
		cur.AvatarURL = fields.AvatarURL
	}
	if fields.Email != nil {
		cur.Email = fields.Email
	}
	f.profiles[id] = cur
	return nil
}

func (f *Fake) UpdateIdentityMetadata(ctx context.Context, meta model.Metadata) error {
	if err := f.enter(ctx, UpdateIdentityMetadata); err != nil {
		return err
	}
	f.mu.Lock()
	if f.current == nil {
		f.mu.Unlock()
		return gateway.ErrNotAuthenticated
	}
	f.current.Identity.Metadata = meta
	for _, a := range f.accounts {
		if a.identity.ID == f.current.Identity.ID {
			a.identity.Metadata = meta
		}
	}
	s := *f.current
	f.mu.Unlock()
	f.emit(gateway.EventUserUpdated, &s)
	return nil
}

func (f *Fake) SignOut(ctx context.Context) error {
	// The local session is dropped even when the remote call fails.
	err := f.enter(ctx, SignOut)
	f.mu.Lock()
	f.current = nil
	f.gen++
	f.mu.Unlock()
	f.emit(gateway.EventSignedOut, nil)
	return err
}

func (f *Fake) ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error) {
	if err := f.enter(ctx, ListCartItems); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLocked(userID), nil
}

// listLocked returns the rows newest first with fresh product snapshots.
func (f *Fake) listLocked(userID string) []model.CartItem {
	rows := f.items[userID]
	out := make([]model.CartItem, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		it := rows[i]
		it.Product = f.products[it.ProductID]
		out = append(out, it)
	}
	return out
}

func (f *Fake) UpsertCartItem(ctx context.Context, userID, productID string, quantity int) error {
	if err := f.enter(ctx, UpsertCartItem); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[productID]; !ok {
		return errors.New("record not found")
	}
	for i, it := range f.items[userID] {
		if it.ProductID == productID {
			f.items[userID][i].Quantity += quantity
			return nil
		}
	}
	f.clock = f.clock.Add(time.Second)
	f.items[userID] = append(f.items[userID], model.CartItem{
		ID: uuid.NewString(), UserID: userID, ProductID: productID, Quantity: quantity,
		CreatedAt: f.clock, UpdatedAt: f.clock,
	})
	return nil
}

func (f *Fake) UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error {
	if err := f.enter(ctx, UpdateCartItemQuantity); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, rows := range f.items {
		for i, it := range rows {
			if it.ID == itemID {
				f.items[uid][i].Quantity = quantity
				return nil
			}
		}
	}
	return errors.New("record not found")
}

func (f *Fake) DeleteCartItem(ctx context.Context, itemID string) error {
	if err := f.enter(ctx, DeleteCartItem); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for uid, rows := range f.items {
		for i, it := range rows {
			if it.ID == itemID {
				f.items[uid] = append(rows[:i:i], rows[i+1:]...)
				return nil
			}
		}
	}
	return errors.New("record not found")
}

func (f *Fake) DeleteAllCartItems(ctx context.Context, userID string) error {
	if err := f.enter(ctx, DeleteAllCartItems); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, userID)
	return nil
}
