package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/deskchat/internal/domain"
	"github.com/gosuda/deskchat/internal/llm"
)

// --- fakes ---

type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	requests []llm.Request
	results  []error // per call; nil means success
	reply    string
}

func (p *fakeProvider) Name() string { return "Fake" }

func (p *fakeProvider) Generate(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.requests = append(p.requests, req)
	if i := p.calls - 1; i < len(p.results) && p.results[i] != nil {
		return "", p.results[i]
	}
	if len(p.results) > 0 && p.calls > len(p.results) && p.results[len(p.results)-1] != nil {
		return "", p.results[len(p.results)-1]
	}
	return p.reply, nil
}

// stallingProvider never answers; it returns once its context ends.
type stallingProvider struct {
	mu       sync.Mutex
	calls    int
	deadline []bool
}

func (p *stallingProvider) Name() string { return "Stalling" }

func (p *stallingProvider) Generate(ctx context.Context, _ llm.Request) (string, error) {
	_, ok := ctx.Deadline()
	p.mu.Lock()
	p.calls++
	p.deadline = append(p.deadline, ok)
	p.mu.Unlock()

	<-ctx.Done()
	return "", ctx.Err()
}

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(p llm.Provider, sleeper *recordingSleeper, observed *[]llm.AttemptFailure) *llm.Client {
	return llm.NewClient(p, llm.Config{
		Model:        "test-model",
		SystemPrompt: "be helpful",
		MaxTokens:    500,
		Temperature:  0.7,
		Retry:        llm.DefaultRetryPolicy(),
	},
		llm.WithSleeper(sleeper.sleep),
		llm.WithObserver(func(_ context.Context, f llm.AttemptFailure) {
			*observed = append(*observed, f)
		}),
	)
}

// --- tests ---

func TestClient_Complete_Success(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{reply: "Please share your order ID."}
	sleeper := &recordingSleeper{}
	var observed []llm.AttemptFailure
	c := newTestClient(p, sleeper, &observed)

	history := []*domain.Message{
		{ID: 1, Sender: domain.SenderUser, Content: "hi"},
		{ID: 2, Sender: domain.SenderAgent, Content: "hello!"},
	}

	reply, err := c.Complete(t.Context(), "Where is my order?", history)

	require.NoError(t, err)
	assert.Equal(t, "Please share your order ID.", reply)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, sleeper.delays)
	assert.Empty(t, observed)

	req := p.requests[0]
	assert.Equal(t, "Where is my order?", req.Prompt)
	assert.Equal(t, "be helpful", req.System)
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, int64(500), req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello!"},
	}, req.History)
}

func TestClient_Complete_RetriesRateLimitedUntilExhausted(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{results: []error{&llm.APIError{StatusCode: 429, Message: "slow down"}}}
	sleeper := &recordingSleeper{}
	var observed []llm.AttemptFailure
	c := newTestClient(p, sleeper, &observed)

	_, err := c.Complete(t.Context(), "hello", nil)

	require.Error(t, err)
	assert.Equal(t, 4, p.calls, "1 initial call + 3 retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)

	var upErr *llm.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 4, upErr.Attempts)
	assert.True(t, upErr.Exhausted)
	assert.True(t, upErr.Retryable())
	assert.Equal(t, llm.CategoryBusy, upErr.Category)

	require.Len(t, observed, 4)
	for i, f := range observed {
		assert.Equal(t, i+1, f.Attempt)
		assert.Equal(t, 3-i, f.RetriesLeft)
		assert.True(t, f.Decision.Retry)
	}
}

func TestClient_Complete_NotFoundAbortsImmediately(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{results: []error{&llm.APIError{StatusCode: 404, Message: "model not found"}}}
	sleeper := &recordingSleeper{}
	var observed []llm.AttemptFailure
	c := newTestClient(p, sleeper, &observed)

	_, err := c.Complete(t.Context(), "hello", nil)

	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, sleeper.delays)

	var upErr *llm.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 1, upErr.Attempts)
	assert.False(t, upErr.Retryable())
	assert.Equal(t, llm.CategoryModelUnavailable, upErr.Category)

	require.Len(t, observed, 1)
	assert.False(t, observed[0].Decision.Retry)
}

func TestClient_Complete_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{
		results: []error{&llm.APIError{StatusCode: 503}, &llm.APIError{StatusCode: 500}, nil},
		reply:   "back online",
	}
	sleeper := &recordingSleeper{}
	var observed []llm.AttemptFailure
	c := newTestClient(p, sleeper, &observed)

	reply, err := c.Complete(t.Context(), "hello", nil)

	require.NoError(t, err)
	assert.Equal(t, "back online", reply)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Len(t, observed, 2)
}

func TestClient_Complete_InterruptedWait(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{results: []error{&llm.APIError{StatusCode: 503}}}
	c := llm.NewClient(p, llm.Config{Retry: llm.DefaultRetryPolicy()},
		llm.WithObserver(nil),
		llm.WithSleeper(func(context.Context, time.Duration) error { return context.Canceled }),
	)

	_, err := c.Complete(t.Context(), "hello", nil)

	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_Complete_ZeroRetries(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{results: []error{&llm.APIError{StatusCode: 429}}}
	sleeper := &recordingSleeper{}
	var observed []llm.AttemptFailure
	c := llm.NewClient(p, llm.Config{}, llm.WithSleeper(sleeper.sleep), llm.WithObserver(func(_ context.Context, f llm.AttemptFailure) {
		observed = append(observed, f)
	}))

	_, err := c.Complete(t.Context(), "hello", nil)

	require.ErrorIs(t, err, llm.ErrUpstream)
	assert.Equal(t, 1, p.calls)
	require.Len(t, observed, 1)
	assert.Equal(t, 0, observed[0].RetriesLeft)
}

func TestClient_Complete_AttemptTimeoutRetries(t *testing.T) {
	t.Parallel()

	p := &stallingProvider{}
	sleeper := &recordingSleeper{}
	var observed []llm.AttemptFailure
	c := llm.NewClient(p, llm.Config{
		Retry:          llm.DefaultRetryPolicy(),
		AttemptTimeout: 20 * time.Millisecond,
	},
		llm.WithSleeper(sleeper.sleep),
		llm.WithObserver(func(_ context.Context, f llm.AttemptFailure) {
			observed = append(observed, f)
		}),
	)

	start := time.Now()
	_, err := c.Complete(t.Context(), "hello", nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 4, p.calls)
	assert.Equal(t, []bool{true, true, true, true}, p.deadline)
	assert.Len(t, sleeper.delays, 3)

	var upErr *llm.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.True(t, upErr.Exhausted)
	assert.Equal(t, llm.CategoryTimeout, upErr.Category)

	require.Len(t, observed, 4)
	for _, f := range observed {
		assert.True(t, f.Decision.Retry)
	}
}

func TestClient_Complete_NoAttemptTimeoutByDefault(t *testing.T) {
	t.Parallel()

	p := &stallingProvider{}
	c := llm.NewClient(p, llm.Config{}, llm.WithObserver(nil))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := c.Complete(ctx, "hello", nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []bool{false}, p.deadline)
}

func TestClient_ProviderName(t *testing.T) {
	t.Parallel()

	c := llm.NewClient(&fakeProvider{}, llm.Config{})
	assert.Equal(t, "Fake", c.ProviderName())
}

func TestTranslateHistory(t *testing.T) {
	t.Parallel()

	got := llm.TranslateHistory([]*domain.Message{
		{Sender: domain.SenderUser, Content: "a"},
		{Sender: domain.SenderAgent, Content: "b"},
		{Sender: domain.SenderUser, Content: "c"},
	})

	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "a"},
		{Role: llm.RoleAssistant, Content: "b"},
		{Role: llm.RoleUser, Content: "c"},
	}, got)
	assert.Empty(t, llm.TranslateHistory(nil))
}
