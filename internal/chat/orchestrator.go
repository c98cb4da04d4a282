// Package chat runs a single conversation turn: validate, resolve the session,
// read the history window, persist the user turn, complete and persist the
// agent reply.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gosuda/deskchat/internal/domain"
	"github.com/gosuda/deskchat/internal/llm"
	redisstore "github.com/gosuda/deskchat/internal/store/redis"
)

const (
	DefaultMaxMessageLength = 500
	DefaultWindow           = 10

	publishTimeout = 5 * time.Second

	// DefaultAlertTimeout bounds how long a failed turn waits on the alerter.
	DefaultAlertTimeout = 5 * time.Second
)

// Completer produces the agent reply for a user turn.
type Completer interface {
	Complete(ctx context.Context, userText string, history []*domain.Message) (string, error)
}

// PubSubPublisher abstracts the Redis pub/sub publish operation.
type PubSubPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Alerter is told about terminal upstream failures.
type Alerter interface {
	UpstreamFailure(ctx context.Context, sessionID uuid.UUID, err *llm.UpstreamError) error
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Reply     string
	SessionID uuid.UUID
}

// Orchestrator coordinates one message turn against the store and the
// completion client.
type Orchestrator struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	window        *HistoryWindow
	completer     Completer
	pubsub        PubSubPublisher
	alerter       Alerter
	tracer        trace.Tracer

	maxLength    int
	windowSize   int
	alertTimeout time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithPublisher(p PubSubPublisher) Option {
	return func(o *Orchestrator) { o.pubsub = p }
}

func WithAlerter(a Alerter) Option {
	return func(o *Orchestrator) { o.alerter = a }
}

// WithAlertTimeout bounds each alerter call.
func WithAlertTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.alertTimeout = d
		}
	}
}

// WithMaxMessageLength bounds the trimmed utterance, in characters.
func WithMaxMessageLength(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxLength = n
		}
	}
}

// WithWindow sets how many prior turns are sent as context.
func WithWindow(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.windowSize = n
		}
	}
}

func NewOrchestrator(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	completer Completer,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		conversations: conversations,
		messages:      messages,
		window:        NewHistoryWindow(messages),
		completer:     completer,
		tracer:        otel.Tracer("github.com/gosuda/deskchat/internal/chat"),
		maxLength:     DefaultMaxMessageLength,
		windowSize:    DefaultWindow,
		alertTimeout:  DefaultAlertTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleTurn processes one user utterance. A nil or unknown sessionID starts
// a new conversation. On an upstream failure the user turn stays persisted and
// the *llm.UpstreamError is returned.
func (o *Orchestrator) HandleTurn(ctx context.Context, rawText string, sessionID *uuid.UUID) (*TurnResult, error) {
	text, err := o.validate(rawText)
	if err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "chat.HandleTurn")
	defer span.End()

	// 1. Resolve or create the conversation.
	convID, err := o.resolveSession(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, "resolve session")
		return nil, fmt.Errorf("chat.Orchestrator.HandleTurn: %w", err)
	}
	span.SetAttributes(attribute.String("session_id", convID.String()))
	logger := log.With().Str("session_id", convID.String()).Logger()

	// 2. Read context before the new turn is written.
	history, err := o.window.Get(ctx, convID, o.windowSize)
	if err != nil {
		span.SetStatus(codes.Error, "history window")
		return nil, fmt.Errorf("chat.Orchestrator.HandleTurn: history: %w", err)
	}

	// 3. Persist the user turn.
	userTurn, err := o.messages.Append(ctx, convID, domain.SenderUser, text)
	if err != nil {
		span.SetStatus(codes.Error, "append user turn")
		return nil, fmt.Errorf("chat.Orchestrator.HandleTurn: append user turn: %w", err)
	}
	o.publish(ctx, TurnEvent{Type: EventTurnAppended, SessionID: convID, Message: userTurn, At: userTurn.CreatedAt})

	// 4. Complete. A client disconnect must not abort the upstream call.
	reply, err := o.completer.Complete(context.WithoutCancel(ctx), text, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion")
		o.upstreamFailed(ctx, convID, err)
		logger.Error().Err(err).Msg("chat.HandleTurn: completion failed")
		return nil, fmt.Errorf("chat.Orchestrator.HandleTurn: %w", err)
	}

	// 5. Persist the agent turn.
	agentTurn, err := o.messages.Append(context.WithoutCancel(ctx), convID, domain.SenderAgent, reply)
	if err != nil {
		span.SetStatus(codes.Error, "append agent turn")
		return nil, fmt.Errorf("chat.Orchestrator.HandleTurn: append agent turn: %w", err)
	}
	o.publish(ctx, TurnEvent{Type: EventTurnAppended, SessionID: convID, Message: agentTurn, At: agentTurn.CreatedAt})

	logger.Debug().Int("history_len", len(history)).Msg("chat.HandleTurn: turn completed")

	return &TurnResult{Reply: reply, SessionID: convID}, nil
}

// History returns the complete transcript of an existing conversation.
func (o *Orchestrator) History(ctx context.Context, sessionID uuid.UUID) ([]*domain.Message, error) {
	exists, err := o.conversations.Exists(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat.Orchestrator.History: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("chat.Orchestrator.History: %w", domain.ErrNotFound)
	}

	msgs, err := o.messages.ListAll(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat.Orchestrator.History: %w", err)
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	return msgs, nil
}

func (o *Orchestrator) validate(rawText string) (string, error) {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return "", &ValidationError{Message: "Message cannot be empty"}
	}
	if utf8.RuneCountInString(text) > o.maxLength {
		return "", &ValidationError{Message: fmt.Sprintf("Message cannot exceed %d characters", o.maxLength)}
	}
	return text, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, sessionID *uuid.UUID) (uuid.UUID, error) {
	if sessionID != nil {
		exists, err := o.conversations.Exists(ctx, *sessionID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("session exists: %w", err)
		}
		if exists {
			return *sessionID, nil
		}
	}

	conv, err := o.conversations.Create(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv.ID, nil
}

func (o *Orchestrator) upstreamFailed(ctx context.Context, convID uuid.UUID, err error) {
	var upErr *llm.UpstreamError
	if !errors.As(err, &upErr) {
		return
	}

	o.publish(ctx, TurnEvent{Type: EventUpstreamError, SessionID: convID, Error: upErr.UserMessage(), At: time.Now()})

	if o.alerter == nil {
		return
	}
	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.alertTimeout)
	defer cancel()

	if alertErr := o.alerter.UpstreamFailure(alertCtx, convID, upErr); alertErr != nil {
		log.Warn().Err(alertErr).Str("session_id", convID.String()).Msg("chat.HandleTurn: failed to send upstream alert")
	}
}

// publish is best effort; failures are logged and never change the turn.
func (o *Orchestrator) publish(ctx context.Context, evt TurnEvent) {
	if o.pubsub == nil {
		return
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	channel := redisstore.ConversationChannel(evt.SessionID)
	if pubErr := o.pubsub.Publish(ctx, channel, payload); pubErr != nil {
		log.Error().Err(pubErr).Str("channel", channel).Msg("chat.publish: failed to publish turn event")
	}
}
