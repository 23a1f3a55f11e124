package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/gateway/gatewaytest"
	"github.com/iliyamo/storefront/internal/model"
)

func newState(t *testing.T, opts Options) (*State, *gatewaytest.Fake) {
	t.Helper()
	gw := gatewaytest.New()
	s := New(gw, opts)
	t.Cleanup(s.Close)
	return s, gw
}

func TestInitializeResolvesOnceAndBecomesReady(t *testing.T) {
	s, gw := newState(t, Options{})
	gw.Persist(model.Identity{ID: "u1", Email: "a@example.com"})

	assert.Equal(t, PhaseInitializing, s.Snapshot().Phase)
	select {
	case <-s.Ready():
		t.Fatal("ready before initialize")
	default:
	}

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Initialize(context.Background()))

	snap := s.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Equal(t, "u1", snap.Identity.ID)
	assert.Equal(t, 1, gw.Calls(gatewaytest.GetCurrentSession))
	assert.Equal(t, 1, gw.Listeners())
	<-s.Ready()
}

func TestInitializeStaysInitializingWhileLookupIsOutstanding(t *testing.T) {
	s, gw := newState(t, Options{})
	release := make(chan struct{})
	entered := make(chan struct{})
	gw.Before(gatewaytest.GetCurrentSession, func(context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error)
	go func() { done <- s.Initialize(context.Background()) }()
	<-entered
	assert.Equal(t, PhaseInitializing, s.Snapshot().Phase)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseReady, s.Snapshot().Phase)
	assert.Nil(t, s.Snapshot().Identity)
}

func TestInitializeFailureStillBecomesReady(t *testing.T) {
	s, gw := newState(t, Options{})
	gw.Fail(gatewaytest.GetCurrentSession, gatewaytest.ErrRemote)

	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, gatewaytest.ErrRemote)
	snap := s.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Nil(t, snap.Identity)
}

func TestNotificationDuringLookupWins(t *testing.T) {
	s, gw := newState(t, Options{})
	gw.Persist(model.Identity{ID: "stale"})
	gw.Before(gatewaytest.GetCurrentSession, func(context.Context) error {
		gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "fresh"}})
		return nil
	})

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, "fresh", s.Identity().ID)
}

func TestLateInitialSessionIsDropped(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "a"}})

	gw.Emit(gateway.EventInitialSession, nil)
	require.NotNil(t, s.Identity())
	assert.Equal(t, "a", s.Identity().ID)
}

func TestSnapshotSeqFollowsChanges(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	first := s.Snapshot().Seq

	gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "a"}})
	gw.Emit(gateway.EventSignedOut, nil)
	assert.Equal(t, first+2, s.Snapshot().Seq)
}

// heldLoads reads the stored session, then holds the result until release
// is closed.
type heldLoads struct {
	*gateway.MemorySessionStore
	entered chan struct{}
	release chan struct{}
}

func (h *heldLoads) Load(ctx context.Context, id string) (*gateway.StoredSession, error) {
	st, err := h.MemorySessionStore.Load(ctx, id)
	close(h.entered)
	<-h.release
	return st, err
}

func TestSignInDuringStartupLookupSticks(t *testing.T) {
	ctx := context.Background()
	mem := gatewaytest.NewMemory()
	opts := gateway.Options{Secret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}
	seed := gateway.NewBackend(mem.Deps(), opts)
	_, err := seed.NewClient("other").CreateCredential(ctx, "b@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)

	deps := mem.Deps()
	held := &heldLoads{MemorySessionStore: mem.Sessions, entered: make(chan struct{}), release: make(chan struct{})}
	deps.Sessions = held
	client := gateway.NewBackend(deps, opts).NewClient("ws")
	s := New(client, Options{})
	t.Cleanup(s.Close)

	done := make(chan error, 1)
	go func() { done <- s.Initialize(ctx) }()
	<-held.entered
	require.NoError(t, s.SignIn(ctx, "b@example.com", "secret1"))
	require.NotNil(t, s.Identity())
	close(held.release)
	require.NoError(t, <-done)

	require.NotNil(t, s.Identity())
	assert.Equal(t, "b@example.com", s.Identity().Email)
	require.NotNil(t, client.CurrentSession())
	assert.Equal(t, "b@example.com", client.CurrentSession().Identity.Email)
	assert.True(t, s.Snapshot().Ready())
}

func TestNotificationsOverwriteIdentity(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))

	gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "a", Metadata: model.Metadata{FullName: "A"}}})
	assert.Equal(t, "A", s.Identity().DisplayName())
	gw.Emit(gateway.EventUserUpdated, &gateway.Session{Identity: model.Identity{ID: "a"}})
	assert.Equal(t, "", s.Identity().DisplayName(), "no merge with the previous value")
	gw.Emit(gateway.EventSignedOut, nil)
	assert.Nil(t, s.Identity())
	assert.Equal(t, PhaseReady, s.Snapshot().Phase)
}

func TestSignInIdentityArrivesViaNotification(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	gw.AddAccount("a@example.com", "pw", model.Identity{ID: "u1"})

	err := s.SignIn(context.Background(), "a@example.com", "nope")
	assert.ErrorIs(t, err, gateway.ErrInvalidCredentials)
	assert.Nil(t, s.Identity())

	require.NoError(t, s.SignIn(context.Background(), "a@example.com", "pw"))
	assert.Equal(t, "u1", s.Identity().ID)
}

func TestSignUpWritesProfileForNewIdentity(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.SignUp(context.Background(), "new@example.com", "secret1", "Newt"))
	me := s.Identity()
	require.NotNil(t, me)
	assert.Equal(t, "Newt", me.DisplayName())
	p, ok := gw.Profile(me.ID)
	require.True(t, ok)
	assert.Equal(t, "Newt", *p.FullName)
	assert.Equal(t, "new@example.com", *p.Email)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	s, gw := newState(t, Options{})
	gw.AddAccount("a@example.com", "pw", model.Identity{ID: "u1"})
	err := s.SignUp(context.Background(), "a@example.com", "secret1", "A")
	assert.ErrorIs(t, err, gateway.ErrEmailExists)
	var pw *PartialWriteError
	assert.False(t, errors.As(err, &pw))
	assert.Zero(t, gw.Calls(gatewaytest.UpsertProfile))
}

func TestSignUpProfileFailureIsDistinctError(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	gw.Fail(gatewaytest.UpsertProfile, gatewaytest.ErrRemote)

	err := s.SignUp(context.Background(), "new@example.com", "secret1", "Newt")
	require.Error(t, err)
	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, OpSignUp, pw.Op)
	assert.Equal(t, StepProfile, pw.Step)
	assert.False(t, pw.Compensated)
	assert.ErrorIs(t, err, gatewaytest.ErrRemote)

	// The credential stays behind.
	_, ok := gw.Account("new@example.com")
	assert.True(t, ok)
	assert.Zero(t, gw.Calls(gatewaytest.DeleteCredential))
}

func TestSignUpProfileFailureCompensates(t *testing.T) {
	s, gw := newState(t, Options{CompensatePartialWrites: true})
	require.NoError(t, s.Initialize(context.Background()))
	gw.Fail(gatewaytest.UpsertProfile, gatewaytest.ErrRemote)

	err := s.SignUp(context.Background(), "new@example.com", "secret1", "Newt")
	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.True(t, pw.Compensated)
	assert.Contains(t, err.Error(), "rolled back")
	_, ok := gw.Account("new@example.com")
	assert.False(t, ok)
	assert.Nil(t, s.Identity())
}

func TestUpdateProfileWithoutIdentityFailsLocally(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	gw.ResetCalls()

	name := "x"
	err := s.UpdateProfile(context.Background(), model.ProfileFields{FullName: &name})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, gw.TotalCalls())
}

func TestUpdateProfileWritesBothSidesForSameID(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	gw.AddAccount("a@example.com", "pw", model.Identity{ID: "u1", Metadata: model.Metadata{FullName: "A", AvatarURL: "a.png"}})
	require.NoError(t, s.SignIn(context.Background(), "a@example.com", "pw"))

	name := "B"
	require.NoError(t, s.UpdateProfile(context.Background(), model.ProfileFields{FullName: &name}))
	assert.Equal(t, model.Metadata{FullName: "B", AvatarURL: "a.png"}, s.Identity().Metadata)
	p, ok := gw.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, "B", *p.FullName)
	assert.Nil(t, p.AvatarURL)
}

func TestUpdateProfileStepFailures(t *testing.T) {
	ctx := context.Background()
	s, gw := newState(t, Options{CompensatePartialWrites: true})
	require.NoError(t, s.Initialize(ctx))
	gw.AddAccount("a@example.com", "pw", model.Identity{ID: "u1", Metadata: model.Metadata{FullName: "A"}})
	require.NoError(t, s.SignIn(ctx, "a@example.com", "pw"))
	name := "B"

	gw.Fail(gatewaytest.UpdateIdentityMetadata, gatewaytest.ErrRemote)
	err := s.UpdateProfile(ctx, model.ProfileFields{FullName: &name})
	assert.ErrorIs(t, err, gatewaytest.ErrRemote)
	var pw *PartialWriteError
	assert.False(t, errors.As(err, &pw))
	assert.Zero(t, gw.Calls(gatewaytest.UpsertProfile))
	gw.Before(gatewaytest.UpdateIdentityMetadata, nil)

	gw.Fail(gatewaytest.UpsertProfile, gatewaytest.ErrRemote)
	err = s.UpdateProfile(ctx, model.ProfileFields{FullName: &name})
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, OpUpdateProfile, pw.Op)
	assert.True(t, pw.Compensated)
	assert.Equal(t, "A", s.Identity().DisplayName())
}

func TestSignOutClearsBeforeRemoteCall(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	gw.AddAccount("a@example.com", "pw", model.Identity{ID: "u1"})
	require.NoError(t, s.SignIn(context.Background(), "a@example.com", "pw"))

	var seenDuringCall *model.Identity
	gw.Before(gatewaytest.SignOut, func(context.Context) error {
		seenDuringCall = s.Identity()
		return gatewaytest.ErrRemote
	})
	err := s.SignOut(context.Background())
	assert.ErrorIs(t, err, gatewaytest.ErrRemote)
	assert.Nil(t, seenDuringCall)
	assert.Nil(t, s.Identity())
}

func TestSubscribeAndDispose(t *testing.T) {
	s, gw := newState(t, Options{})
	require.NoError(t, s.Initialize(context.Background()))

	var mu sync.Mutex
	var seen []string
	dispose := s.Subscribe(func(prev, next Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		id := "-"
		if next.Identity != nil {
			id = next.Identity.ID
		}
		seen = append(seen, id)
	})
	gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "a"}})
	gw.Emit(gateway.EventSignedOut, nil)
	dispose()
	dispose()
	gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "b"}})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "-"}, seen)
}

func TestCloseReleasesSubscription(t *testing.T) {
	gw := gatewaytest.New()
	s := New(gw, Options{})
	require.NoError(t, s.Initialize(context.Background()))
	require.Equal(t, 1, gw.Listeners())

	called := false
	s.Subscribe(func(prev, next Snapshot) { called = true })
	s.Close()
	s.Close()
	assert.Zero(t, gw.Listeners())
	gw.Emit(gateway.EventSignedIn, &gateway.Session{Identity: model.Identity{ID: "a"}})
	assert.False(t, called)
	assert.Nil(t, s.Identity())
}

func TestCloseBeforeInitializeDoesNotLeak(t *testing.T) {
	gw := gatewaytest.New()
	s := New(gw, Options{})
	s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Initialize(ctx))
	assert.Zero(t, gw.Listeners())
}
