package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/gosuda/deskchat/internal/domain"
)

const tracerName = "github.com/gosuda/deskchat/internal/llm"

// AttemptFailure describes one failed attempt for observers.
type AttemptFailure struct {
	Attempt     int
	RetriesLeft int
	Err         error
	Decision    Decision
}

// AttemptObserver is told about every failed attempt. It has no way to
// influence the retry loop.
type AttemptObserver func(ctx context.Context, f AttemptFailure)

// Config is the static generation configuration.
type Config struct {
	Model          string
	SystemPrompt   string
	MaxTokens      int64
	Temperature    float64
	Retry          RetryPolicy
	// AttemptTimeout bounds one provider call including pacing; zero
	// leaves the call bounded only by ctx.
	AttemptTimeout time.Duration
}

// Client is the resilient completion client.
type Client struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	observe  AttemptObserver
	sleep    Sleeper
	tracer   trace.Tracer
}

// Option customizes a Client.
type Option func(*Client)

// WithLimiter paces outbound attempts; nil disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithObserver replaces the default logging observer.
func WithObserver(o AttemptObserver) Option {
	return func(c *Client) { c.observe = o }
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

func NewClient(provider Provider, cfg Config, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		cfg:      cfg,
		observe:  LogAttemptFailure,
		sleep:    sleepContext,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.observe == nil {
		c.observe = func(context.Context, AttemptFailure) {}
	}
	return c
}

// ProviderName returns the configured provider label.
func (c *Client) ProviderName() string {
	return c.provider.Name()
}

// Complete generates a reply to userText given the prior turns. It makes at
// most 1+Retries attempts and returns an *UpstreamError on terminal failure.
func (c *Client) Complete(ctx context.Context, userText string, history []*domain.Message) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.Complete", trace.WithAttributes(
		attribute.String("llm.provider", c.provider.Name()),
		attribute.Int("llm.history_len", len(history)),
	))
	defer span.End()

	req := Request{
		Model:       c.cfg.Model,
		System:      c.cfg.SystemPrompt,
		History:     TranslateHistory(history),
		Prompt:      userText,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	maxAttempts := c.cfg.Retry.Retries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		lastErr  error
		decision Decision
		attempt  int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		reply, err := c.attempt(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return reply, nil
		}

		lastErr = err
		decision = Classify(err)
		c.observe(ctx, AttemptFailure{
			Attempt:     attempt,
			RetriesLeft: maxAttempts - attempt,
			Err:         err,
			Decision:    decision,
		})

		if !decision.Retry || attempt == maxAttempts {
			break
		}

		if sleepErr := c.sleep(ctx, c.cfg.Retry.Delay(attempt)); sleepErr != nil {
			lastErr = sleepErr
			decision = Decision{Reason: "wait interrupted"}
			break
		}
	}

	upErr := &UpstreamError{
		Category:  Categorize(lastErr),
		Attempts:  attempt,
		Exhausted: decision.Retry,
		Err:       lastErr,
	}
	span.SetAttributes(
		attribute.Int("llm.attempts", attempt),
		attribute.String("llm.error_category", string(upErr.Category)),
	)
	span.RecordError(upErr)
	span.SetStatus(codes.Error, string(upErr.Category))

	log.Error().Err(lastErr).
		Str("provider", c.provider.Name()).
		Int("attempts", attempt).
		Str("category", string(upErr.Category)).
		Msg("llm: completion failed")

	return "", upErr
}

func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("llm.Client.attempt: pacing: %w", err)
		}
	}

	reply, err := c.provider.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return reply, nil
}

// LogAttemptFailure is the default observer: a warn log line and a span event.
func LogAttemptFailure(ctx context.Context, f AttemptFailure) {
	log.Warn().Err(f.Err).
		Int("attempt", f.Attempt).
		Int("retries_left", f.RetriesLeft).
		Bool("retryable", f.Decision.Retry).
		Str("reason", f.Decision.Reason).
		Msgf("llm: attempt %d failed, %d retries left", f.Attempt, f.RetriesLeft)

	trace.SpanFromContext(ctx).AddEvent("llm.attempt_failed", trace.WithAttributes(
		attribute.Int("attempt", f.Attempt),
		attribute.Int("retries_left", f.RetriesLeft),
		attribute.Bool("retryable", f.Decision.Retry),
		attribute.String("reason", f.Decision.Reason),
	))
}
