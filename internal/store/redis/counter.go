package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowCounter counts requests per key in fixed time windows shared by all
// API instances.
type WindowCounter struct {
	client *redis.Client
	scope  string
	window time.Duration
	now    func() time.Time
}

// NewWindowCounter returns a counter whose keys are namespaced by scope.
func NewWindowCounter(client *redis.Client, scope string, window time.Duration) *WindowCounter {
	return &WindowCounter{client: client, scope: scope, window: window, now: time.Now}
}

// Incr records one hit for key and returns the count in the current window
// and the time the window resets.
func (c *WindowCounter) Incr(ctx context.Context, key string) (int64, time.Time, error) {
	now := c.now()
	start := now.Truncate(c.window)
	reset := start.Add(c.window)
	redisKey := RateLimitKey(c.scope, key, start.UnixMilli())

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpireAt(ctx, redisKey, reset)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("redis.WindowCounter.Incr: %w", err)
	}

	return incr.Val(), reset, nil
}
