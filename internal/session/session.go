// Package session holds the Session State of one client: the current
// identity and whether it has been resolved yet.  It is driven entirely by
// the gateway's auth notifications; operations never write the identity
// directly, except SignOut, which clears it before the remote call returns.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/model"
)

// Phase tells whether the identity is authoritative yet.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
)

// Snapshot is an immutable view of the session.  Seq counts the changes
// applied so far; listeners may receive snapshots out of order and use it
// to drop older ones.
type Snapshot struct {
	Identity *model.Identity `json:"user"`
	Phase    Phase           `json:"phase"`
	Seq      uint64          `json:"-"`
}

// Ready reports whether the identity is final.
func (s Snapshot) Ready() bool { return s.Phase == PhaseReady }

// Authenticated reports whether a resolved identity is present.
func (s Snapshot) Authenticated() bool { return s.Ready() && s.Identity != nil }

// Listener observes every session change with the snapshots before and
// after it.
type Listener func(prev, next Snapshot)

// Options tune a State.
type Options struct {
	// CompensatePartialWrites undoes the first write of SignUp and
	// UpdateProfile when the profile write fails.
	CompensatePartialWrites bool
	Logger                  *slog.Logger
}

// State is the Session State container of one client.
type State struct {
	gw   gateway.Auth
	opts Options
	log  *slog.Logger

	initOnce  sync.Once
	readyOnce sync.Once
	ready     chan struct{}

	mu          sync.Mutex
	identity    *model.Identity
	phase       Phase
	changes     uint64 // notifications applied so far
	initSeen    uint64 // changes when the startup lookup began
	closed      bool
	unsubscribe func()
	listeners   map[uint64]Listener
	nextID      uint64
}

func New(gw gateway.Auth, opts Options) *State {
	if gw == nil {
		panic("session: nil gateway")
	}
	return &State{
		gw:        gw,
		opts:      opts,
		log:       logging.OrDiscard(opts.Logger),
		ready:     make(chan struct{}),
		phase:     PhaseInitializing,
		listeners: map[uint64]Listener{},
	}
}

// Initialize subscribes to auth notifications for the lifetime of the
// State and then resolves the current session exactly once.  Later calls
// are no-ops returning nil.  A failed lookup still moves the phase to
// ready with no identity; the error is returned for logging.
func (s *State) Initialize(ctx context.Context) error {
	var err error
	s.initOnce.Do(func() {
		unsub := s.gw.OnSessionChange(s.onAuthChange)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsub()
			return
		}
		s.unsubscribe = unsub
		seen := s.changes
		s.initSeen = seen
		s.mu.Unlock()

		sess, gerr := s.gw.GetCurrentSession(ctx)
		if gerr != nil {
			err = fmt.Errorf("resolve session: %w", gerr)
			s.log.Warn("session lookup failed", "err", gerr)
			sess = nil
		}
		var id *model.Identity
		if sess != nil {
			id = &sess.Identity
		}
		s.applyInitial(id, seen)
	})
	return err
}

// applyInitial sets the startup result unless a notification already
// replaced the identity while the lookup was in flight.
func (s *State) applyInitial(id *model.Identity, seen uint64) {
	s.apply(id, func() bool { return s.changes != seen })
	s.markReady()
}

func (s *State) onAuthChange(ev gateway.Event, sess *gateway.Session) {
	var id *model.Identity
	if sess != nil {
		id = &sess.Identity
	}
	s.log.Debug("auth change", "event", ev, "authenticated", id != nil)
	if ev == gateway.EventInitialSession {
		// A startup result delivered after any other change is stale.
		if !s.apply(id, func() bool { return s.changes != s.initSeen }) {
			s.log.Debug("stale initial session dropped")
		}
		return
	}
	s.set(id)
}

// set overwrites identity, moves to ready and notifies listeners.
func (s *State) set(id *model.Identity) { s.apply(id, nil) }

// apply is set guarded by stale, which is checked under the lock.  It
// reports whether the identity was written.
func (s *State) apply(id *model.Identity, stale func() bool) bool {
	s.mu.Lock()
	if s.closed || (stale != nil && stale()) {
		s.mu.Unlock()
		return false
	}
	prev := s.snapshotLocked()
	s.identity = id.Clone()
	s.phase = PhaseReady
	s.changes++
	next := s.snapshotLocked()
	fns := s.listenersLocked()
	s.mu.Unlock()

	s.markReady()
	for _, fn := range fns {
		fn(prev, next)
	}
	return true
}

func (s *State) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{Identity: s.identity.Clone(), Phase: s.phase, Seq: s.changes}
}

func (s *State) listenersLocked() []Listener {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Listener, len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	return fns
}

// Snapshot returns the current identity and phase.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Identity returns a copy of the current identity, nil when absent.
func (s *State) Identity() *model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity.Clone()
}

// Ready is closed the first time the phase becomes ready.
func (s *State) Ready() <-chan struct{} { return s.ready }

// Subscribe registers fn for every later change.  The returned func
// removes it and is safe to call more than once.
func (s *State) Subscribe(fn Listener) (dispose func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SignIn authenticates.  The identity arrives through the auth
// notification, not through the return value.
func (s *State) SignIn(ctx context.Context, email, password string) error {
	if _, err := s.gw.SignInWithCredentials(ctx, email, password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignUp creates the credential and then the profile row keyed by the new
// identity's id.  A profile failure is reported as *PartialWriteError.
func (s *State) SignUp(ctx context.Context, email, password, displayName string) error {
	sess, err := s.gw.CreateCredential(ctx, email, password, model.Metadata{FullName: displayName})
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	if sess == nil {
		return ErrNoSession
	}
	id := sess.Identity.ID
	name, mail := displayName, sess.Identity.Email
	perr := s.gw.UpsertProfile(ctx, id, model.ProfileFields{FullName: &name, Email: &mail})
	if perr == nil {
		return nil
	}
	pw := &PartialWriteError{Op: OpSignUp, Step: StepProfile, Err: perr}
	if s.opts.CompensatePartialWrites {
		if d, ok := s.gw.(gateway.CredentialDeleter); ok {
			if cerr := d.DeleteCredential(ctx, id); cerr != nil {
				pw.CompensationErr = cerr
			} else {
				pw.Compensated = true
			}
		}
	}
	s.log.Warn("sign up left a partial write", "user_id", id, "compensated", pw.Compensated, "err", perr)
	return pw
}

// UpdateProfile writes fields to the auth-side metadata and then to the
// profile row of the same id.  Without an identity it fails locally.
func (s *State) UpdateProfile(ctx context.Context, fields model.ProfileFields) error {
	me := s.Identity()
	if me == nil {
		return ErrNotAuthenticated
	}
	if fields.Empty() {
		return nil
	}
	before := me.Metadata
	if err := s.gw.UpdateIdentityMetadata(ctx, fields.ApplyTo(before)); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	perr := s.gw.UpsertProfile(ctx, me.ID, fields)
	if perr == nil {
		return nil
	}
	pw := &PartialWriteError{Op: OpUpdateProfile, Step: StepProfile, Err: perr}
	if s.opts.CompensatePartialWrites {
		if cerr := s.gw.UpdateIdentityMetadata(ctx, before); cerr != nil {
			pw.CompensationErr = cerr
		} else {
			pw.Compensated = true
		}
	}
	s.log.Warn("profile update left a partial write", "user_id", me.ID, "compensated", pw.Compensated, "err", perr)
	return pw
}

// SignOut clears the identity and notifies listeners before asking the
// gateway to end the session.  The SIGNED_OUT notification is a backstop.
func (s *State) SignOut(ctx context.Context) error {
	s.set(nil)
	if err := s.gw.SignOut(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Close drops the gateway subscription and every listener.  Later
// notifications are ignored.
func (s *State) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.listeners = map[uint64]Listener{}
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
