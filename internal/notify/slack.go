// Package notify alerts operators when the completion upstream fails a turn.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/deskchat/internal/llm"
)

const slackHTTPTimeout = 10 * time.Second

// SlackAPI abstracts the subset of the Slack client used by SlackAlerter.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackAlerter posts upstream failures to an operations channel. Alerts of
// the same category are suppressed for the cooldown period.
type SlackAlerter struct {
	api      SlackAPI
	channel  string
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[llm.Category]time.Time
}

func NewSlackAlerter(api SlackAPI, channel string, cooldown time.Duration) *SlackAlerter {
	return &SlackAlerter{
		api:      api,
		channel:  channel,
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[llm.Category]time.Time),
	}
}

// NewSlackAlerterFromToken builds an alerter around a bot token.
func NewSlackAlerterFromToken(token, channel string, cooldown time.Duration) *SlackAlerter {
	client := slacklib.New(token, slacklib.OptionHTTPClient(&http.Client{Timeout: slackHTTPTimeout}))
	return NewSlackAlerter(client, channel, cooldown)
}

func (a *SlackAlerter) UpstreamFailure(ctx context.Context, sessionID uuid.UUID, upErr *llm.UpstreamError) error {
	if !a.allow(upErr.Category) {
		log.Debug().Str("category", string(upErr.Category)).Msg("notify.SlackAlerter: alert suppressed")
		return nil
	}

	blocks := BuildUpstreamFailureBlocks(sessionID, upErr)
	_, _, err := a.api.PostMessageContext(ctx, a.channel,
		slacklib.MsgOptionText(fallbackText(upErr), false),
		slacklib.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("notify.SlackAlerter.UpstreamFailure: %w", err)
	}
	return nil
}

func (a *SlackAlerter) allow(c llm.Category) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if last, ok := a.last[c]; ok && now.Sub(last) < a.cooldown {
		return false
	}
	a.last[c] = now
	return true
}

func fallbackText(upErr *llm.UpstreamError) string {
	return fmt.Sprintf("AI upstream failure: %s after %d attempt(s)", upErr.Category, upErr.Attempts)
}

// BuildUpstreamFailureBlocks builds Slack Block Kit blocks describing a failed turn.
func BuildUpstreamFailureBlocks(sessionID uuid.UUID, upErr *llm.UpstreamError) []slacklib.Block {
	outcome := "aborted"
	if upErr.Retryable() {
		outcome = "retries exhausted"
	}

	text := fmt.Sprintf("*AI upstream failure* `%s`\n*Session:* `%s`\n*Attempts:* %d (%s)",
		upErr.Category, sessionID, upErr.Attempts, outcome)
	section := slacklib.NewSectionBlock(
		slacklib.NewTextBlockObject(slacklib.MarkdownType, text, false, false),
		nil,
		nil,
	)

	detail := slacklib.NewContextBlock("",
		slacklib.NewTextBlockObject(slacklib.PlainTextType, truncate(fmt.Sprint(upErr.Err), 300), false, false),
	)

	return []slacklib.Block{section, detail}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// LogAlerter records upstream failures in the log when no Slack channel is configured.
type LogAlerter struct{}

func (LogAlerter) UpstreamFailure(_ context.Context, sessionID uuid.UUID, upErr *llm.UpstreamError) error {
	log.Warn().Err(upErr.Err).
		Str("session_id", sessionID.String()).
		Str("category", string(upErr.Category)).
		Int("attempts", upErr.Attempts).
		Msg("notify: upstream failure")
	return nil
}
