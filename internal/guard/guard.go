// Package guard decides whether a request may reach a protected page.
// Decisions are pure functions of a session snapshot; the HTTP adaptation
// lives in the middleware package.
package guard

import (
	"net/url"

	"github.com/iliyamo/storefront/internal/session"
)

// Kind selects a guard.
type Kind int

const (
	Authenticated Kind = iota // any signed-in identity
	Admin                     // signed-in identity accepted by the admin policy
)

// Outcome of a guard evaluation.
type Outcome int

const (
	Checking Outcome = iota // session not resolved yet; render a placeholder, never redirect
	Allow
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Checking:
		return "checking"
	case Allow:
		return "allow"
	default:
		return "deny"
	}
}

// Decision is an Outcome plus, for Deny, where to send the client.
type Decision struct {
	Outcome  Outcome
	Redirect string
}

// Paths are the redirect targets of denied requests.
type Paths struct {
	Login string // for Authenticated; gets ?redirect=<requested>
	Home  string // for Admin
}

// Evaluate applies guard kind to snap for a request of requested (path
// plus query).  While the session is initializing the outcome is always
// Checking, whatever identity the snapshot carries.
func Evaluate(kind Kind, snap session.Snapshot, policy AdminPolicy, paths Paths, requested string) Decision {
	if !snap.Ready() {
		return Decision{Outcome: Checking}
	}
	if snap.Identity == nil {
		if kind == Admin {
			return Decision{Outcome: Deny, Redirect: paths.Home}
		}
		return Decision{Outcome: Deny, Redirect: loginRedirect(paths.Login, requested)}
	}
	if kind == Admin {
		if policy == nil || !policy.IsAdmin(*snap.Identity) {
			return Decision{Outcome: Deny, Redirect: paths.Home}
		}
	}
	return Decision{Outcome: Allow}
}

func loginRedirect(login, requested string) string {
	if requested == "" {
		return login
	}
	u, err := url.Parse(login)
	if err != nil {
		return login
	}
	q := u.Query()
	q.Set("redirect", requested)
	u.RawQuery = q.Encode()
	return u.String()
}
