package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Counter counts hits per key in fixed time windows.
type Counter interface {
	// Incr records one hit and returns the count in the current window and
	// the time that window resets.
	Incr(ctx context.Context, key string) (int64, time.Time, error)
}

type windowEntry struct {
	start time.Time
	count int64
}

// MemoryCounter is a process-local Counter. Stale windows are cleaned up
// every cleanup interval until ctx is done.
type MemoryCounter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*windowEntry
}

func NewMemoryCounter(ctx context.Context, window time.Duration) *MemoryCounter {
	c := &MemoryCounter{
		window:  window,
		now:     time.Now,
		entries: make(map[string]*windowEntry),
	}

	// Background cleanup of stale windows.
	go func() {
		ticker := time.NewTicker(max(window, time.Minute))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	return c
}

func (c *MemoryCounter) Incr(_ context.Context, key string) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now().Truncate(c.window)
	e, ok := c.entries[key]
	if !ok || !e.start.Equal(start) {
		e = &windowEntry{start: start}
		c.entries[key] = e
	}
	e.count++

	return e.count, start.Add(c.window), nil
}

func (c *MemoryCounter) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.now().Truncate(c.window)
	for key, e := range c.entries {
		if e.start.Before(current) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of tracked keys.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RateLimitConfig configures one fixed-window limiter.
type RateLimitConfig struct {
	Limit   int
	Message string
	// Skip exempts matching requests from counting.
	Skip func(r *http.Request) bool
}

// RateLimit applies per-client fixed-window limiting keyed by the request's
// socket address. chi's RealIP rewrites it only when the proxy is trusted.
// Counter failures let the request through.
func RateLimit(counter Counter, cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			count, reset, err := counter.Incr(r.Context(), ClientIP(r))
			if err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("middleware.RateLimit: counter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			remaining := max(int64(cfg.Limit)-count, 0)
			resetSecs := int64(math.Ceil(time.Until(reset).Seconds()))
			resetSecs = max(resetSecs, 0)

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(cfg.Limit))
			h.Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("RateLimit-Reset", strconv.FormatInt(resetSecs, 10))

			if count > int64(cfg.Limit) {
				h.Set("Retry-After", strconv.FormatInt(resetSecs, 10))
				WriteJSONError(w, http.StatusTooManyRequests, cfg.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WriteJSONError writes the {"error": message} body used across the API.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
