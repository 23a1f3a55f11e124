package guard

import (
	"strings"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/model"
)

// AdminPolicy decides whether an identity may use the admin console.
type AdminPolicy interface {
	IsAdmin(id model.Identity) bool
}

// RolePolicy grants admin to identities whose role is in the set.
type RolePolicy struct{ roles map[string]struct{} }

func NewRolePolicy(roles ...string) RolePolicy {
	p := RolePolicy{roles: map[string]struct{}{}}
	for _, r := range roles {
		if r = strings.ToUpper(strings.TrimSpace(r)); r != "" {
			p.roles[r] = struct{}{}
		}
	}
	return p
}

func (p RolePolicy) IsAdmin(id model.Identity) bool {
	_, ok := p.roles[strings.ToUpper(id.Role)]
	return ok
}

// EmailPolicy grants admin to an explicit list of emails.
type EmailPolicy struct{ emails map[string]struct{} }

func NewEmailPolicy(emails ...string) EmailPolicy {
	p := EmailPolicy{emails: map[string]struct{}{}}
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			p.emails[e] = struct{}{}
		}
	}
	return p
}

func (p EmailPolicy) IsAdmin(id model.Identity) bool {
	_, ok := p.emails[strings.ToLower(id.Email)]
	return ok
}

// DenyAll grants admin to nobody.
type DenyAll struct{}

func (DenyAll) IsAdmin(model.Identity) bool { return false }

// PolicyFromConfig builds the policy named by cfg.AdminPolicy.
func PolicyFromConfig(cfg config.SessionConfig) AdminPolicy {
	switch cfg.AdminPolicy {
	case config.AdminPolicyRole:
		return NewRolePolicy(cfg.AdminRoles...)
	case config.AdminPolicyEmail:
		return NewEmailPolicy(cfg.AdminEmails...)
	default:
		return DenyAll{}
	}
}
