package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/deskchat/internal/llm"
)

// --- mock SlackAPI ---

type mockSlackAPI struct {
	posts   []string
	options [][]slacklib.MsgOption
	err     error
}

func (m *mockSlackAPI) PostMessageContext(_ context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error) {
	m.posts = append(m.posts, channelID)
	m.options = append(m.options, options)
	if m.err != nil {
		return "", "", m.err
	}
	return channelID, "1700000000.000100", nil
}

func busyError() *llm.UpstreamError {
	return &llm.UpstreamError{
		Category:  llm.CategoryBusy,
		Attempts:  4,
		Exhausted: true,
		Err:       &llm.APIError{StatusCode: 429, Message: "too many requests"},
	}
}

func TestSlackAlerter_UpstreamFailure(t *testing.T) {
	t.Parallel()

	t.Run("posts to channel", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{}
		a := NewSlackAlerter(api, "C0OPS", time.Minute)

		err := a.UpstreamFailure(t.Context(), uuid.New(), busyError())

		require.NoError(t, err)
		require.Equal(t, []string{"C0OPS"}, api.posts)
		assert.Len(t, api.options[0], 2)
	})

	t.Run("same category suppressed within cooldown", func(t *testing.T) {
		t.Parallel()

		api := &mockSlackAPI{}
		a := NewSlackAlerter(api, "C0OPS", time.Minute)
		now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		a.now = func() time.Time { return now }

		require.NoError(t, a.UpstreamFailure(t.Context(), uuid.New(), busyError()))
		require.NoError(t, a.UpstreamFailure(t.Context(), uuid.New(), busyError()))
		assert.Len(t, api.posts, 1)

		other := &llm.UpstreamError{Category: llm.CategoryCredentials, Attempts: 1, Err: errors.New("401")}
		require.NoError(t, a.UpstreamFailure(t.Context(), uuid.New(), other))
		assert.Len(t, api.posts, 2, "different category is not suppressed")

		now = now.Add(61 * time.Second)
		require.NoError(t, a.UpstreamFailure(t.Context(), uuid.New(), busyError()))
		assert.Len(t, api.posts, 3)
	})

	t.Run("api error wrapped", func(t *testing.T) {
		t.Parallel()

		apiErr := errors.New("channel_not_found")
		a := NewSlackAlerter(&mockSlackAPI{err: apiErr}, "C0OPS", 0)

		err := a.UpstreamFailure(t.Context(), uuid.New(), busyError())

		require.ErrorIs(t, err, apiErr)
	})
}

func TestBuildUpstreamFailureBlocks(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("8f14e45f-ceea-467f-a0e6-6d1c3c2b7c11")
	blocks := BuildUpstreamFailureBlocks(id, busyError())

	require.Len(t, blocks, 2)

	section, ok := blocks[0].(*slacklib.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, "`busy`")
	assert.Contains(t, section.Text.Text, id.String())
	assert.Contains(t, section.Text.Text, "retries exhausted")

	ctxBlock, ok := blocks[1].(*slacklib.ContextBlock)
	require.True(t, ok)
	require.Len(t, ctxBlock.ContextElements.Elements, 1)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 2))
}

func TestLogAlerter(t *testing.T) {
	t.Parallel()

	assert.NoError(t, LogAlerter{}.UpstreamFailure(t.Context(), uuid.New(), busyError()))
}
