package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig) *IngestLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewIngestLimiter(IngestLimiterParam{
		Log:    zap.NewNop(),
		Config: config.Config{RateLimit: cfg},
		Redis:  client,
	})
}

func TestIngestLimiterDeniesPastBurst(t *testing.T) {
	limiter := newTestLimiter(t, config.RateLimitConfig{
		Enabled:      true,
		AccountRate:  1,
		AccountBurst: 3,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := limiter.Allow(ctx, "1001")
		assert.True(t, res.Allowed, "request %d within burst", i)
	}

	res := limiter.Allow(ctx, "1001")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter.Nanoseconds(), int64(0))
}

func TestIngestLimiterIsolatesAccounts(t *testing.T) {
	limiter := newTestLimiter(t, config.RateLimitConfig{
		Enabled:      true,
		AccountRate:  1,
		AccountBurst: 1,
	})
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "1001").Allowed)
	assert.False(t, limiter.Allow(ctx, "1001").Allowed)
	assert.True(t, limiter.Allow(ctx, "2002").Allowed)
}

func TestIngestLimiterDisabledAllowsEverything(t *testing.T) {
	limiter := newTestLimiter(t, config.RateLimitConfig{Enabled: false})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow(ctx, "1001").Allowed)
	}
}

func TestIngestLimiterFailsOpenWithoutRedis(t *testing.T) {
	limiter := NewIngestLimiter(IngestLimiterParam{
		Log: zap.NewNop(),
		Config: config.Config{RateLimit: config.RateLimitConfig{
			Enabled:      true,
			AccountRate:  1,
			AccountBurst: 1,
		}},
	})

	assert.True(t, limiter.Allow(context.Background(), "1001").Allowed)
}
