package config

import (
	"strings"
	"time"
)

// Admin policy names accepted by ADMIN_POLICY.
const (
	AdminPolicyRole    = "role"
	AdminPolicyEmail   = "email"
	AdminPolicyDenyAll = "deny_all"
)

// SessionConfig groups the settings of the per-client workspaces: how
// clients are identified, how long idle workspaces live, where guards
// redirect to and which admin policy applies.
type SessionConfig struct {
	CookieName       string        // cookie carrying the workspace id
	CookieSecure     bool          // mark the workspace cookie Secure
	IdleTTL          time.Duration // evict workspaces idle for longer than this
	MaxWorkspaces    int           // live workspace cap; the least recently used one is evicted past it
	SweepInterval    time.Duration // how often the registry looks for idle workspaces
	InitWait         time.Duration // how long a request waits for Initialize before guards answer "checking"
	GatewayTimeout   time.Duration // bound for a single gateway call made on behalf of a request
	ReloadTimeout    time.Duration // bound for cart reloads triggered by auth-change notifications
	StorePrefix      string        // Redis key prefix for persisted client sessions
	LoginPath        string        // redirect target for unauthenticated access
	HomePath         string        // redirect target for denied admin access
	AdminPolicy      string        // role | email | deny_all
	AdminRoles       []string      // roles that grant admin capability under the role policy
	AdminEmails      []string      // emails that grant admin capability under the email policy
	CompensateWrites bool          // undo the first half of a failed two-step write
	ToastTTL         time.Duration // auto-removal delay for toasts
}

// LoadSessionConfig reads SESSION_*, ADMIN_* and TOAST_TTL variables and
// applies defaults.  An unknown admin policy falls back to deny_all so a
// typo never grants admin access.
func LoadSessionConfig() SessionConfig {
	cfg := SessionConfig{
		CookieName:       envStr("SESSION_COOKIE_NAME", "sf_ws"),
		CookieSecure:     envBool("SESSION_COOKIE_SECURE", false),
		IdleTTL:          envDur("SESSION_IDLE_TTL", 30*time.Minute),
		MaxWorkspaces:    envInt("SESSION_MAX_WORKSPACES", 10000),
		SweepInterval:    envDur("SESSION_SWEEP_INTERVAL", time.Minute),
		InitWait:         envDur("SESSION_INIT_WAIT", 2*time.Second),
		GatewayTimeout:   envDur("GATEWAY_TIMEOUT", 5*time.Second),
		ReloadTimeout:    envDur("CART_RELOAD_TIMEOUT", 5*time.Second),
		StorePrefix:      envStr("SESSION_STORE_PREFIX", "sf:session"),
		LoginPath:        envStr("SESSION_LOGIN_PATH", "/login"),
		HomePath:         envStr("SESSION_HOME_PATH", "/"),
		AdminPolicy:      strings.ToLower(envStr("ADMIN_POLICY", AdminPolicyRole)),
		AdminRoles:       envList("ADMIN_ROLES", "ADMIN"),
		AdminEmails:      envList("ADMIN_EMAILS", ""),
		CompensateWrites: envBool("SESSION_COMPENSATE_WRITES", false),
		ToastTTL:         envDur("TOAST_TTL", 5*time.Second),
	}
	switch cfg.AdminPolicy {
	case AdminPolicyRole, AdminPolicyEmail, AdminPolicyDenyAll:
	default:
		cfg.AdminPolicy = AdminPolicyDenyAll
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return cfg
}
