package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Limiter is a fixed-window counter backed by Redis. Because the window
// state lives in Redis rather than process memory, limits hold across
// restarts and across replicas sharing the same Redis.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	log    zerolog.Logger
}

func New(client *redis.Client, limit int, window time.Duration, logger zerolog.Logger) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
		log:    logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow consumes one request for the key and reports whether it fits in the
// current window. Redis errors fail open: a broken limiter should degrade to
// no limiting, not to a full outage.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("limiter unavailable, allowing request")
		return true
	}

	count := incr.Val()
	if count > int64(l.limit) {
		l.log.Debug().Str("key", key).Int64("count", count).Msg("rate limit exceeded")
		return false
	}
	return true
}

// Limit returns the configured per-window request cap.
func (l *Limiter) Limit() int { return l.limit }
