// Package workspace owns the per-client state containers.  A Workspace
// bundles one gateway client with the Session State, Cart State and toast
// queue built on it; the Registry creates workspaces on first use and
// closes them when they go idle or the server stops.
package workspace

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/iliyamo/storefront/internal/cart"
	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/session"
	"github.com/iliyamo/storefront/internal/toast"
)

// Workspace is the state of one client.
type Workspace struct {
	ID      string
	Client  *gateway.Client
	Session *session.State
	Cart    *cart.State
	Toasts  *toast.Queue

	lastSeen atomic.Int64 // unix nanos
}

func (w *Workspace) touch(now time.Time) { w.lastSeen.Store(now.UnixNano()) }

// LastSeen returns when the workspace was last used.
func (w *Workspace) LastSeen() time.Time { return time.Unix(0, w.lastSeen.Load()) }

// WaitReady blocks until the session is resolved, max elapses or ctx ends.
// It reports whether the session is ready.
func (w *Workspace) WaitReady(ctx context.Context, max time.Duration) bool {
	select {
	case <-w.Session.Ready():
		return true
	default:
	}
	if max <= 0 {
		return false
	}
	t := time.NewTimer(max)
	defer t.Stop()
	select {
	case <-w.Session.Ready():
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close tears the containers down in dependency order.
func (w *Workspace) Close() {
	w.Cart.Close()
	w.Session.Close()
	w.Toasts.Close()
}
