package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/config"
	"github.com/warp/condo-billing/generic"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "billing.db", cfg.Database.Path)
	assert.Equal(t, "SOA", cfg.Billing.BillPrefix)
	assert.Equal(t, generic.DefaultBillingCycle(), cfg.Cycle())
	assert.Equal(t, 10*time.Minute, cfg.Redis.TTL)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Scheduler.Enabled)

	strategy, err := cfg.TierStrategy()
	require.NoError(t, err)
	assert.Equal(t, billing.DefaultTierStrategy(), strategy)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	// GIVEN: a config file setting the port and boundary mode
	// WHEN: the environment overrides the port
	// THEN: the environment wins, the file still applies elsewhere

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
billing:
  water:
    boundary: exclusive
`), 0o600))
	t.Setenv("BILLING_SERVER_PORT", "9100")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	strategy, err := cfg.TierStrategy()
	require.NoError(t, err)
	assert.Equal(t, billing.BoundaryExclusive, strategy.Boundary)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string][2]string{
		"cutoff day past 28":    {"BILLING_BILLING_CUTOFF_DAY", "30"},
		"due day zero":          {"BILLING_BILLING_DUE_DAY", "0"},
		"unknown boundary mode": {"BILLING_BILLING_WATER_BOUNDARY", "sideways"},
		"unknown zero mode":     {"BILLING_BILLING_WATER_ZERO_CONSUMPTION", "free"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := config.Load("")
			require.Error(t, err)
			assert.True(t, generic.IsClientError(err))
		})
	}
}
