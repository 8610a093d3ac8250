package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session-secret")
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("JWT_SECRET", testJWTSecret)
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 12*time.Hour, cfg.JWTTTL)
	require.Equal(t, 5*time.Minute, cfg.LookupTTL)
	require.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	require.Equal(t, "10 0 * * *", cfg.ProfitRollupCron)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("LOOKUP_TTL", "90s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, 30, cfg.RateLimitPerMinute)
	require.Equal(t, 90*time.Second, cfg.LookupTTL)
}

func TestLoadConfigRejectsShortJWTSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "jwt secret")
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate() { c.calls++ }

func TestDeferredInvalidatorForwardsAfterBind(t *testing.T) {
	var d DeferredInvalidator
	d.Invalidate()

	target := &countingInvalidator{}
	d.Bind(target)
	d.Invalidate()
	d.Invalidate()
	require.Equal(t, 2, target.calls)
}

func TestInTestModeFollowsEnvironment(t *testing.T) {
	t.Cleanup(RefreshTestMode)
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}
