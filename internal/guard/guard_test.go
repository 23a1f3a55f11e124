package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/session"
)

var paths = Paths{Login: "/login", Home: "/"}

func TestCheckingWhileInitializingNeverRedirects(t *testing.T) {
	identities := []*model.Identity{nil, {ID: "u", Role: "ADMIN"}, {ID: "v", Role: "CUSTOMER"}}
	policies := []AdminPolicy{NewRolePolicy("ADMIN"), DenyAll{}, nil}
	for _, kind := range []Kind{Authenticated, Admin} {
		for _, id := range identities {
			for _, p := range policies {
				d := Evaluate(kind, session.Snapshot{Identity: id, Phase: session.PhaseInitializing}, p, paths, "/account")
				assert.Equal(t, Checking, d.Outcome)
				assert.Empty(t, d.Redirect)
			}
		}
	}
}

func TestAuthenticatedGuard(t *testing.T) {
	anon := session.Snapshot{Phase: session.PhaseReady}
	d := Evaluate(Authenticated, anon, nil, paths, "/account/orders?page=2")
	assert.Equal(t, Deny, d.Outcome)
	assert.Equal(t, "/login?redirect=%2Faccount%2Forders%3Fpage%3D2", d.Redirect)

	d = Evaluate(Authenticated, anon, nil, paths, "")
	assert.Equal(t, "/login", d.Redirect)

	user := session.Snapshot{Phase: session.PhaseReady, Identity: &model.Identity{ID: "u"}}
	assert.Equal(t, Decision{Outcome: Allow}, Evaluate(Authenticated, user, nil, paths, "/account"))
}

func TestAdminGuard(t *testing.T) {
	admin := session.Snapshot{Phase: session.PhaseReady, Identity: &model.Identity{ID: "a", Email: "Boss@Shop.test", Role: "admin"}}
	customer := session.Snapshot{Phase: session.PhaseReady, Identity: &model.Identity{ID: "c", Email: "c@shop.test", Role: "CUSTOMER"}}
	anon := session.Snapshot{Phase: session.PhaseReady}

	cases := []struct {
		name   string
		snap   session.Snapshot
		policy AdminPolicy
		want   Outcome
	}{
		{"role policy admin", admin, NewRolePolicy("ADMIN"), Allow},
		{"role policy customer", customer, NewRolePolicy("ADMIN"), Deny},
		{"email policy match", admin, NewEmailPolicy("boss@shop.test"), Allow},
		{"email policy miss", customer, NewEmailPolicy("boss@shop.test"), Deny},
		{"deny all", admin, DenyAll{}, Deny},
		{"nil policy", admin, nil, Deny},
		{"anonymous", anon, NewRolePolicy("ADMIN"), Deny},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(Admin, tc.snap, tc.policy, paths, "/admin")
			assert.Equal(t, tc.want, d.Outcome)
			if tc.want == Deny {
				assert.Equal(t, "/", d.Redirect)
			}
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	admin := model.Identity{Email: "boss@shop.test", Role: "ADMIN"}

	p := PolicyFromConfig(config.SessionConfig{AdminPolicy: config.AdminPolicyRole, AdminRoles: []string{"ADMIN"}})
	assert.True(t, p.IsAdmin(admin))

	p = PolicyFromConfig(config.SessionConfig{AdminPolicy: config.AdminPolicyEmail, AdminEmails: []string{"other@shop.test"}})
	assert.False(t, p.IsAdmin(admin))

	p = PolicyFromConfig(config.SessionConfig{AdminPolicy: "anything"})
	assert.IsType(t, DenyAll{}, p)
	assert.False(t, p.IsAdmin(admin))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "checking", Checking.String())
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "deny", Deny.String())
}
