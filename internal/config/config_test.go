package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadSessionConfig_Defaults(t *testing.T) {
	cfg := LoadSessionConfig()

	assert.Equal(t, "sf_ws", cfg.CookieName)
	assert.Equal(t, AdminPolicyRole, cfg.AdminPolicy)
	assert.Equal(t, []string{"ADMIN"}, cfg.AdminRoles)
	assert.Empty(t, cfg.AdminEmails)
	assert.Equal(t, 5*time.Second, cfg.ToastTTL)
	assert.Equal(t, 10000, cfg.MaxWorkspaces)
	assert.False(t, cfg.CompensateWrites)
}

func TestLoadSessionConfig_UnknownPolicyDeniesAll(t *testing.T) {
	t.Setenv("ADMIN_POLICY", "everyone")

	cfg := LoadSessionConfig()

	assert.Equal(t, AdminPolicyDenyAll, cfg.AdminPolicy)
}

func TestLoadSessionConfig_Overrides(t *testing.T) {
	t.Setenv("ADMIN_POLICY", "EMAIL")
	t.Setenv("ADMIN_EMAILS", " ops@example.com, , owner@example.com ")
	t.Setenv("SESSION_IDLE_TTL", "90s")
	t.Setenv("SESSION_COMPENSATE_WRITES", "yes")

	cfg := LoadSessionConfig()

	assert.Equal(t, AdminPolicyEmail, cfg.AdminPolicy)
	assert.Equal(t, []string{"ops@example.com", "owner@example.com"}, cfg.AdminEmails)
	assert.Equal(t, 90*time.Second, cfg.IdleTTL)
	assert.True(t, cfg.CompensateWrites)
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()

	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadWorkspaceRateLimitConfig_KeysByIP(t *testing.T) {
	t.Setenv("RATE_LIMIT_KEY_STRATEGY", "user")
	t.Setenv("WORKSPACE_RATE_LIMIT_CAPACITY", "-5")

	cfg := LoadWorkspaceRateLimitConfig()

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "ip", cfg.KeyStrategy)
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, "sf:rl:ws", cfg.Prefix)
}

func TestLoadCacheConfig_Methods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")

	cfg := LoadCacheConfig()

	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.Equal(t, "sf:catalog", cfg.Prefix)
}

func TestLoadEventsConfig_FallsBackToAMQPURL(t *testing.T) {
	t.Setenv("AMQP_URL", "amqp://u:p@broker:5672/")

	cfg := LoadEventsConfig()

	assert.Equal(t, "amqp://u:p@broker:5672/", cfg.URL)
	assert.Equal(t, "storefront.events", cfg.Queue)
}
