// Package ratelimit is half of C9: per-connection inbound event rate
// limiting, adapted from the teacher's HTTP-middleware RateLimiter
// (internal/middleware/rate_limit.go) onto per-event WebSocket traffic
// instead of per-request HTTP traffic.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v10"
)

// Bucket names the distinct per-connection limits the connection
// handler enforces.
// Cursor moves get a looser bucket than object mutations since they
// are high frequency and lossy by design.
type Bucket string

const (
	BucketDefault Bucket = "event"
	BucketCursor  Bucket = "cursor"
)

var limits = map[Bucket]redis_rate.Limit{
	BucketDefault: redis_rate.PerSecond(60),
	BucketCursor:  redis_rate.PerSecond(25),
}

type Limiter struct {
	limiter *redis_rate.Limiter
}

func New(rdb *redis.Client) *Limiter {
	return &Limiter{limiter: redis_rate.NewLimiter(rdb)}
}

// Allow reports whether connectionID may perform another event of the
// given bucket right now.
func (l *Limiter) Allow(ctx context.Context, connectionID string, bucket Bucket) (bool, error) {
	limit, ok := limits[bucket]
	if !ok {
		limit = limits[BucketDefault]
	}
	key := fmt.Sprintf("ratelimit:%s:%s", bucket, connectionID)
	res, err := l.limiter.Allow(ctx, key, limit)
	if err != nil {
		// Fail open: a Redis hiccup should not sever otherwise healthy
		// connections.
		return true, err
	}
	return res.Allowed > 0, nil
}
