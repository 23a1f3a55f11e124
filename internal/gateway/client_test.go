package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/gateway/gatewaytest"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/utils"
)

type recordedEvent struct {
	event gateway.Event
	user  string
}

type sinkRecorder struct{ events []queue.StorefrontEvent }

func (s *sinkRecorder) Publish(ev queue.StorefrontEvent) { s.events = append(s.events, ev) }

func (s *sinkRecorder) types() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func newBackend(t *testing.T) (*gateway.Backend, *gatewaytest.Memory, *sinkRecorder) {
	t.Helper()
	mem := gatewaytest.NewMemory()
	sink := &sinkRecorder{}
	deps := mem.Deps()
	deps.Events = sink
	b := gateway.NewBackend(deps, gateway.Options{Secret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4})
	return b, mem, sink
}

func record(c *gateway.Client) (*[]recordedEvent, func()) {
	var got []recordedEvent
	stop := c.OnSessionChange(func(ev gateway.Event, s *gateway.Session) {
		r := recordedEvent{event: ev}
		if s != nil {
			r.user = s.Identity.Email
		}
		got = append(got, r)
	})
	return &got, stop
}

func TestSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	b, mem, sink := newBackend(t)
	c := b.NewClient("ws-1")
	events, stop := record(c)
	defer stop()

	s, err := c.CreateCredential(ctx, "Ann@Example.com", "secret1", model.Metadata{FullName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", s.Identity.Email)
	assert.Equal(t, "CUSTOMER", s.Identity.Role)
	assert.Equal(t, "Ann", s.Identity.DisplayName())

	claims, err := utils.ParseAccessToken("test-secret", s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.Identity.ID, claims.Subject)
	assert.Equal(t, "ws-1", claims.Sid)

	_, err = c.CreateCredential(ctx, "ann@example.com", "secret1", model.Metadata{})
	assert.ErrorIs(t, err, gateway.ErrEmailExists)

	require.NoError(t, c.SignOut(ctx))
	assert.Nil(t, c.CurrentSession())
	assert.Zero(t, mem.Tokens.Active(s.Identity.ID))

	_, err = c.SignInWithCredentials(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, gateway.ErrInvalidCredentials)
	_, err = c.SignInWithCredentials(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, gateway.ErrInvalidCredentials)

	s2, err := c.SignInWithCredentials(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, s.Identity.ID, s2.Identity.ID)

	assert.Equal(t, []recordedEvent{
		{gateway.EventSignedIn, "ann@example.com"},
		{gateway.EventSignedOut, ""},
		{gateway.EventSignedIn, "ann@example.com"},
	}, *events)
	assert.Equal(t, []string{queue.EventSignedUp, queue.EventSignedOut, queue.EventSignedIn}, sink.types())
}

func TestCreateCredentialValidation(t *testing.T) {
	b, mem, _ := newBackend(t)
	c := b.NewClient("ws")
	_, err := c.CreateCredential(context.Background(), "not-an-email", "secret1", model.Metadata{})
	assert.ErrorIs(t, err, gateway.ErrInvalidEmail)
	_, err = c.CreateCredential(context.Background(), "a@example.com", "123", model.Metadata{})
	assert.ErrorIs(t, err, gateway.ErrWeakPassword)
	assert.Zero(t, mem.Users.Len())
}

func TestInactiveAccountCannotSignIn(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	s, err := b.NewClient("a").CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	mem.Users.Deactivate(s.Identity.ID)

	_, err = b.NewClient("b").SignInWithCredentials(ctx, "a@example.com", "secret1")
	assert.ErrorIs(t, err, gateway.ErrInvalidCredentials)
}

func TestGetCurrentSessionRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	first := b.NewClient("ws-1")
	s, err := first.CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	mem.Users.SetRole(s.Identity.ID, "ADMIN")

	// A fresh client for the same workspace sees the stored session with
	// identity details re-read from the user store.
	again := b.NewClient("ws-1")
	events, stop := record(again)
	defer stop()
	restored, err := again.GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, s.Identity.ID, restored.Identity.ID)
	assert.Equal(t, "ADMIN", restored.Identity.Role)
	assert.Equal(t, []recordedEvent{{gateway.EventInitialSession, "a@example.com"}}, *events)

	other, err := b.NewClient("ws-2").GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestGetCurrentSessionDropsDeletedCredential(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	s, err := b.NewClient("ws").CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	require.NoError(t, mem.Users.Delete(ctx, s.Identity.ID))

	got, err := b.NewClient("ws").GetCurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	st, err := mem.Sessions.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestGetCurrentSessionRotatesExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	s, err := b.NewClient("ws").CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)

	st, err := mem.Sessions.Load(ctx, "ws")
	require.NoError(t, err)
	st.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, mem.Sessions.Save(ctx, "ws", *st, time.Hour))

	got, err := b.NewClient("ws").GetCurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEqual(t, s.RefreshToken, got.RefreshToken)
	assert.True(t, got.ExpiresAt.After(time.Now()))
	assert.Equal(t, 1, mem.Tokens.Active(s.Identity.ID))
}

func TestRefreshSessionKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newBackend(t)
	c := b.NewClient("ws")
	s, err := c.CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	events, stop := record(c)
	defer stop()

	r, err := c.RefreshSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, s.Identity.ID, r.Identity.ID)
	assert.NotEqual(t, s.RefreshToken, r.RefreshToken)
	assert.Equal(t, []recordedEvent{{gateway.EventTokenRefreshed, "a@example.com"}}, *events)

	_, err = c.RefreshSession(ctx, s.RefreshToken)
	assert.ErrorIs(t, err, gateway.ErrInvalidRefresh, "rotated token is single use")

	require.NoError(t, c.SignOut(ctx))
	_, err = c.RefreshSession(ctx, "")
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
}

func TestRefreshSessionFromAnonymousClientSignsIn(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newBackend(t)
	s, err := b.NewClient("ws-1").CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)

	anon := b.NewClient("ws-2")
	events, stop := record(anon)
	defer stop()
	r, err := anon.RefreshSession(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, s.Identity.ID, r.Identity.ID)
	assert.Equal(t, []recordedEvent{{gateway.EventSignedIn, "a@example.com"}}, *events)
	assert.Equal(t, queue.EventSignedIn, sink.events[len(sink.events)-1].Type)
}

// staleLoads reads the stored session, then holds the result until
// release is closed.
type staleLoads struct {
	*gateway.MemorySessionStore
	entered chan struct{}
	release chan struct{}
}

func (s *staleLoads) Load(ctx context.Context, id string) (*gateway.StoredSession, error) {
	st, err := s.MemorySessionStore.Load(ctx, id)
	close(s.entered)
	<-s.release
	return st, err
}

func TestSignInDuringLookupKeepsFreshSession(t *testing.T) {
	for _, expired := range []bool{false, true} {
		name := "valid"
		if expired {
			name = "expired"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mem := gatewaytest.NewMemory()
			b := gateway.NewBackend(mem.Deps(), gateway.Options{Secret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4})
			_, err := b.NewClient("ws").CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
			require.NoError(t, err)
			_, err = b.NewClient("other").CreateCredential(ctx, "b@example.com", "secret1", model.Metadata{})
			require.NoError(t, err)
			if expired {
				st, err := mem.Sessions.Load(ctx, "ws")
				require.NoError(t, err)
				st.ExpiresAt = time.Now().Add(-time.Minute)
				require.NoError(t, mem.Sessions.Save(ctx, "ws", *st, time.Hour))
			}

			deps := mem.Deps()
			gate := &staleLoads{MemorySessionStore: mem.Sessions, entered: make(chan struct{}), release: make(chan struct{})}
			deps.Sessions = gate
			c := gateway.NewBackend(deps, gateway.Options{Secret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}).NewClient("ws")
			events, stop := record(c)
			defer stop()

			type result struct {
				s   *gateway.Session
				err error
			}
			done := make(chan result, 1)
			go func() {
				s, err := c.GetCurrentSession(ctx)
				done <- result{s, err}
			}()
			<-gate.entered
			fresh, err := c.SignInWithCredentials(ctx, "b@example.com", "secret1")
			require.NoError(t, err)
			close(gate.release)
			r := <-done

			require.NoError(t, r.err)
			require.NotNil(t, r.s)
			assert.Equal(t, "b@example.com", r.s.Identity.Email)
			assert.Equal(t, "b@example.com", c.CurrentSession().Identity.Email)
			assert.Equal(t, []recordedEvent{{gateway.EventSignedIn, "b@example.com"}}, *events)
			st, err := mem.Sessions.Load(ctx, "ws")
			require.NoError(t, err)
			require.NotNil(t, st)
			assert.Equal(t, fresh.RefreshToken, st.RefreshToken)
		})
	}
}

func TestUpdateIdentityMetadataEmitsUserUpdated(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	c := b.NewClient("ws")
	err := c.UpdateIdentityMetadata(ctx, model.Metadata{FullName: "x"})
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)

	s, err := c.CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{FullName: "A"})
	require.NoError(t, err)
	events, stop := record(c)
	defer stop()

	require.NoError(t, c.UpdateIdentityMetadata(ctx, model.Metadata{FullName: "B"}))
	assert.Equal(t, "B", c.CurrentSession().Identity.Metadata.FullName)
	cred, err := mem.Users.GetByID(ctx, s.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", cred.Metadata.FullName)
	assert.Equal(t, []recordedEvent{{gateway.EventUserUpdated, "a@example.com"}}, *events)
}

func TestUpsertProfileOnlyForSelf(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	c := b.NewClient("ws")
	name := "Ann"
	assert.ErrorIs(t, c.UpsertProfile(ctx, "someone", model.ProfileFields{FullName: &name}), gateway.ErrNotAuthenticated)

	s, err := c.CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	assert.ErrorIs(t, c.UpsertProfile(ctx, "someone", model.ProfileFields{FullName: &name}), gateway.ErrForbidden)
	require.NoError(t, c.UpsertProfile(ctx, s.Identity.ID, model.ProfileFields{FullName: &name}))

	p, err := mem.Profiles.Get(ctx, s.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.FullName)
}

func TestDeleteCredential(t *testing.T) {
	ctx := context.Background()
	b, mem, _ := newBackend(t)
	c := b.NewClient("ws")
	s, err := c.CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)

	assert.ErrorIs(t, c.DeleteCredential(ctx, "other"), gateway.ErrForbidden)
	require.NoError(t, c.DeleteCredential(ctx, s.Identity.ID))
	assert.Nil(t, c.CurrentSession())
	assert.Zero(t, mem.Users.Len())
	assert.Zero(t, mem.Tokens.Active(s.Identity.ID))
	st, err := mem.Sessions.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestCartRowScoping(t *testing.T) {
	ctx := context.Background()
	b, mem, sink := newBackend(t)
	mem.Carts.AddProduct(model.Product{ID: "p1", Price: 10})

	anon := b.NewClient("anon")
	_, err := anon.ListCartItems(ctx, "u")
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
	assert.ErrorIs(t, anon.UpsertCartItem(ctx, "u", "p1", 1), gateway.ErrNotAuthenticated)

	alice := b.NewClient("a")
	sa, err := alice.CreateCredential(ctx, "alice@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	bob := b.NewClient("b")
	sb, err := bob.CreateCredential(ctx, "bob@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)

	require.NoError(t, alice.UpsertCartItem(ctx, sa.Identity.ID, "p1", 2))
	require.NoError(t, alice.UpsertCartItem(ctx, sa.Identity.ID, "p1", 3))
	items, err := alice.ListCartItems(ctx, sa.Identity.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	// Bob can neither read nor touch Alice's rows.
	_, err = bob.ListCartItems(ctx, sa.Identity.ID)
	assert.ErrorIs(t, err, gateway.ErrForbidden)
	assert.ErrorIs(t, bob.UpsertCartItem(ctx, sa.Identity.ID, "p1", 1), gateway.ErrForbidden)
	assert.Error(t, bob.UpdateCartItemQuantity(ctx, items[0].ID, 9))
	assert.Error(t, bob.DeleteCartItem(ctx, items[0].ID))
	assert.ErrorIs(t, bob.DeleteAllCartItems(ctx, sa.Identity.ID), gateway.ErrForbidden)
	bobItems, err := bob.ListCartItems(ctx, sb.Identity.ID)
	require.NoError(t, err)
	assert.Empty(t, bobItems)

	assert.ErrorIs(t, alice.UpsertCartItem(ctx, sa.Identity.ID, "p1", 0), gateway.ErrInvalidQty)
	require.NoError(t, alice.UpdateCartItemQuantity(ctx, items[0].ID, 1))
	require.NoError(t, alice.DeleteCartItem(ctx, items[0].ID))
	require.NoError(t, alice.DeleteAllCartItems(ctx, sa.Identity.ID))
	assert.Contains(t, sink.types(), queue.EventCartCleared)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newBackend(t)
	c := b.NewClient("ws")
	events, stop := record(c)
	stop()
	stop()
	_, err := c.CreateCredential(ctx, "a@example.com", "secret1", model.Metadata{})
	require.NoError(t, err)
	assert.Empty(t, *events)
}

func TestSessionStoreMemoryTTL(t *testing.T) {
	ctx := context.Background()
	s := gateway.NewMemorySessionStore()
	require.NoError(t, s.Save(ctx, "ws", gateway.StoredSession{UserID: "u"}, time.Nanosecond))
	time.Sleep(time.Millisecond)
	got, err := s.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(ctx, "ws", gateway.StoredSession{UserID: "u"}, 0))
	got, err = s.Load(ctx, "ws")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u", got.UserID)
	require.NoError(t, s.Delete(ctx, "ws"))
	got, err = s.Load(ctx, "ws")
	require.NoError(t, err)
	assert.Nil(t, got)
}
