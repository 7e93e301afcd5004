package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/condo-billing/billing"
	"github.com/warp/condo-billing/cache"
	"github.com/warp/condo-billing/factory"
	"github.com/warp/condo-billing/generic"
)

type countingSource struct {
	cfg   *billing.RateConfiguration
	calls int
}

func (s *countingSource) GetRateConfiguration(context.Context, generic.TenantID) (*billing.RateConfiguration, error) {
	s.calls++
	return s.cfg, nil
}

func TestRateCache_NilClientPassesThrough(t *testing.T) {
	cfg := factory.DefaultRateConfiguration("t1")
	src := &countingSource{cfg: &cfg}
	c := cache.NewRateCache(nil, src, time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := c.GetRateConfiguration(context.Background(), "t1")
		require.NoError(t, err)
		assert.Same(t, &cfg, got)
	}
	assert.Equal(t, 3, src.calls)

	c.Invalidate(context.Background(), "t1")
}

func TestRateCache_UnreachableRedisFallsBackToSource(t *testing.T) {
	// GIVEN: a client pointed at a closed port
	// WHEN: reading rates
	// THEN: the store answers and nothing fails

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	cfg := factory.DefaultRateConfiguration("t1")
	src := &countingSource{cfg: &cfg}
	c := cache.NewRateCache(client, src, time.Minute, nil)

	got, err := c.GetRateConfiguration(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, cfg.ElectricRate.Equal(got.ElectricRate))
	assert.Equal(t, 1, src.calls)
}

func TestRateCache_MissingConfigurationIsNotAnError(t *testing.T) {
	src := &countingSource{}
	c := cache.NewRateCache(nil, src, time.Minute, nil)

	got, err := c.GetRateConfiguration(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewClient_EmptyAddrDisablesCache(t *testing.T) {
	client, err := cache.NewClient(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Nil(t, client)
}
