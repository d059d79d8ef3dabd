package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const ingestKeyPrefix = "tollgate:ratelimit:ingest:"

// IngestLimiter throttles event ingestion per account. When disabled, or when
// Redis cannot be reached, it fails open so a limiter outage never blocks
// billing traffic.
type IngestLimiter struct {
	log     *zap.Logger
	bucket  *TokenBucket
	enabled bool
	rate    float64
	burst   int
}

type IngestLimiterParam struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewIngestLimiter(p IngestLimiterParam) *IngestLimiter {
	cfg := p.Config.RateLimit
	enabled := cfg.Enabled && p.Redis != nil && cfg.AccountRate > 0 && cfg.AccountBurst > 0
	return &IngestLimiter{
		log:     p.Log.Named("ratelimit.ingest"),
		bucket:  NewTokenBucket(p.Redis),
		enabled: enabled,
		rate:    float64(cfg.AccountRate),
		burst:   cfg.AccountBurst,
	}
}

// Allow reports whether an event for the given account may be admitted.
func (l *IngestLimiter) Allow(ctx context.Context, accountID string) Result {
	if l == nil || !l.enabled || accountID == "" {
		return Result{Allowed: true}
	}

	res, err := l.bucket.Allow(ctx, ingestKeyPrefix+accountID, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable, admitting event",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return Result{Allowed: true}
	}
	return res
}
