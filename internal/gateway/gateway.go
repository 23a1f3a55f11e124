// Package gateway is the boundary through which every persistence and auth
// operation of the storefront is performed.  A Client plays the role of one
// connected client's backend SDK instance: it owns that client's persisted
// session, emits auth change notifications and scopes cart rows to the
// signed-in identity.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/storefront/internal/model"
)

// Event names an auth change notification.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidRefresh     = errors.New("invalid or expired refresh token")
)

// Session is a resolved auth session.  A nil *Session means "no session".
type Session struct {
	Identity     model.Identity `json:"user"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// AuthChangeFunc receives auth change notifications.  s is nil for
// EventSignedOut and for an INITIAL_SESSION without a session.
type AuthChangeFunc func(event Event, s *Session)

// Auth is the auth side of the gateway used by Session State.
type Auth interface {
	GetCurrentSession(ctx context.Context) (*Session, error)
	OnSessionChange(fn AuthChangeFunc) (unsubscribe func())
	SignInWithCredentials(ctx context.Context, email, password string) (*Session, error)
	CreateCredential(ctx context.Context, email, password string, meta model.Metadata) (*Session, error)
	UpsertProfile(ctx context.Context, id string, fields model.ProfileFields) error
	UpdateIdentityMetadata(ctx context.Context, meta model.Metadata) error
	SignOut(ctx context.Context) error
}

// CredentialDeleter is implemented by gateways able to remove a credential
// they just created.  Session State uses it to compensate a failed signup.
type CredentialDeleter interface {
	DeleteCredential(ctx context.Context, id string) error
}

// Carts is the cart side of the gateway used by Cart State.
type Carts interface {
	ListCartItems(ctx context.Context, userID string) ([]model.CartItem, error)
	UpsertCartItem(ctx context.Context, userID, productID string, quantity int) error
	UpdateCartItemQuantity(ctx context.Context, itemID string, quantity int) error
	DeleteCartItem(ctx context.Context, itemID string) error
	DeleteAllCartItems(ctx context.Context, userID string) error
}

// Gateway is everything a workspace needs from one client connection.
type Gateway interface {
	Auth
	Carts
}
