package llm

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds the retry loop. Retries counts attempts after the first.
type RetryPolicy struct {
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration
	Factor   float64
}

// DefaultRetryPolicy is 3 retries with 1s, 2s, 4s waits, capped at 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:  3,
		MinDelay: time.Second,
		MaxDelay: 5 * time.Second,
		Factor:   2,
	}
}

// Delay returns the wait before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.MinDelay) * math.Pow(p.Factor, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
