package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront/internal/cart"
	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/session"
	"github.com/iliyamo/storefront/internal/toast"
)

// Options configure a Registry.
type Options struct {
	IdleTTL       time.Duration // evict after this much inactivity; 0 disables eviction
	MaxWorkspaces int           // evict the least recently used workspace past this; 0 means no cap
	InitTimeout   time.Duration // bound for the initial session lookup
	ReloadTimeout time.Duration // bound for identity-triggered cart reloads
	ToastTTL      time.Duration
	Compensate    bool // session.Options.CompensatePartialWrites
	Logger        *slog.Logger
}

// Registry maps workspace ids to live workspaces.
type Registry struct {
	backend *gateway.Backend
	opts    Options
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	items  map[string]*Workspace
	closed bool
	wg     sync.WaitGroup
}

func NewRegistry(b *gateway.Backend, opts Options) *Registry {
	if b == nil {
		panic("workspace: nil backend")
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 5 * time.Second
	}
	return &Registry{
		backend: b,
		opts:    opts,
		log:     logging.OrDiscard(opts.Logger),
		now:     time.Now,
		items:   map[string]*Workspace{},
	}
}

// NewID returns a fresh workspace id.
func NewID() string { return uuid.NewString() }

// Get returns a live workspace and marks it used.
func (r *Registry) Get(id string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.items[id]
	if ok {
		w.touch(r.now())
	}
	return w, ok
}

// Open returns the workspace for id, creating it when needed.  A new
// workspace starts resolving its session in the background; callers use
// WaitReady to wait for it.  When MaxWorkspaces is reached the least
// recently used workspace is evicted first.  It returns nil after Close.
func (r *Registry) Open(id string) *Workspace {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if w, ok := r.items[id]; ok {
		w.touch(r.now())
		r.mu.Unlock()
		return w
	}
	victim := r.oldestOverCapLocked()
	w := r.build(id)
	r.items[id] = w
	r.wg.Add(1)
	r.mu.Unlock()

	if victim != nil {
		victim.Close()
		metrics.WorkspaceClosed()
		r.log.Info("evicted least recently used workspace", "workspace", victim.ID)
	}
	metrics.WorkspaceOpened()
	r.log.Debug("workspace opened", "workspace", id)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.opts.InitTimeout)
		defer cancel()
		if err := w.Session.Initialize(ctx); err != nil {
			r.log.Warn("workspace session lookup failed", "workspace", id, "err", err)
		}
	}()
	return w
}

// oldestOverCapLocked removes and returns the least recently used
// workspace when one more would exceed MaxWorkspaces.
func (r *Registry) oldestOverCapLocked() *Workspace {
	if r.opts.MaxWorkspaces <= 0 || len(r.items) < r.opts.MaxWorkspaces {
		return nil
	}
	var oldest *Workspace
	for _, w := range r.items {
		if oldest == nil || w.LastSeen().Before(oldest.LastSeen()) {
			oldest = w
		}
	}
	if oldest != nil {
		delete(r.items, oldest.ID)
	}
	return oldest
}

func (r *Registry) build(id string) *Workspace {
	client := r.backend.NewClient(id)
	sess := session.New(client, session.Options{CompensatePartialWrites: r.opts.Compensate, Logger: r.log.With("workspace", id)})
	w := &Workspace{
		ID:      id,
		Client:  client,
		Session: sess,
		Cart:    cart.New(client, sess, cart.Options{ReloadTimeout: r.opts.ReloadTimeout, Logger: r.log.With("workspace", id)}),
		Toasts:  toast.New(r.opts.ToastTTL),
	}
	w.touch(r.now())
	return w
}

// Evict closes and forgets one workspace.  The persisted session survives,
// so the next request for id restores it.
func (r *Registry) Evict(id string) bool {
	r.mu.Lock()
	w, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if ok {
		w.Close()
		metrics.WorkspaceClosed()
	}
	return ok
}

// Sweep evicts workspaces idle for longer than IdleTTL and returns how
// many it closed.
func (r *Registry) Sweep() int {
	if r.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.IdleTTL)
	r.mu.Lock()
	var idle []*Workspace
	for id, w := range r.items {
		if w.LastSeen().Before(cutoff) {
			idle = append(idle, w)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()
	for _, w := range idle {
		w.Close()
		metrics.WorkspaceClosed()
	}
	if len(idle) > 0 {
		r.log.Info("evicted idle workspaces", "count", len(idle))
	}
	return len(idle)
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Close evicts everything and waits for pending session lookups.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := r.items
	r.items = map[string]*Workspace{}
	r.mu.Unlock()
	for _, w := range all {
		w.Close()
		metrics.WorkspaceClosed()
	}
	r.wg.Wait()
}
