package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avtenantd/internal/cache"
	"github.com/vyrodovalexey/avtenantd/internal/config"
	"github.com/vyrodovalexey/avtenantd/internal/observability"
)

func TestRevocationsLocalFallback(t *testing.T) {
	r := NewRevocations(nil, nil)
	ctx := context.Background()

	assert.False(t, r.IsRevoked(ctx, "jti-1"))

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Minute))
	assert.True(t, r.IsRevoked(ctx, "jti-1"))
	assert.False(t, r.IsRevoked(ctx, "jti-2"))
}

func TestRevocationsLocalExpiry(t *testing.T) {
	r := NewRevocations(nil, nil)
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "jti-1", 20*time.Millisecond))
	assert.True(t, r.IsRevoked(ctx, "jti-1"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, r.IsRevoked(ctx, "jti-1"))
}

func TestRevocationsIgnoresEmptyAndNonPositive(t *testing.T) {
	r := NewRevocations(nil, nil)
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "", time.Minute))
	require.NoError(t, r.Revoke(ctx, "jti-1", 0))
	assert.False(t, r.IsRevoked(ctx, "jti-1"))
	assert.False(t, r.IsRevoked(ctx, ""))
}

func TestRevocationsRedisBacked(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := cache.New(&config.CacheConfig{
		Enabled: true,
		Type:    config.CacheTypeRedis,
		TTL:     config.Duration(time.Minute),
		Redis:   config.RedisConfig{Address: mr.Addr()},
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	r := NewRevocations(c, nil)
	ctx := context.Background()

	require.NoError(t, r.Revoke(ctx, "jti-1", time.Minute))
	assert.True(t, r.IsRevoked(ctx, "jti-1"))

	// The entry carries a TTL so it expires with the token.
	mr.FastForward(2 * time.Minute)
	assert.False(t, r.IsRevoked(ctx, "jti-1"))
}
