package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/deskchat/internal/chat"
	"github.com/gosuda/deskchat/internal/domain"
	"github.com/gosuda/deskchat/internal/llm"
)

const (
	msgInvalidSession  = "Invalid session ID format"
	msgUnexpected      = "An unexpected error occurred. Please try again."
	msgHistoryNotFound = "Conversation not found"
	msgHistoryFailed   = "Failed to retrieve conversation history"

	canonicalUUIDLen = 36
)

//nolint:gochecknoglobals // sentinel error
var errInvalidSessionID = errors.New("v1: session id is not a canonical uuid")

type SendMessageBody struct {
	Message   *string `json:"message,omitempty" doc:"User utterance, at most 500 characters after trimming"`
	SessionID *string `json:"sessionId,omitempty" doc:"Existing session ID; omitted to start a new conversation"`
}

type SendMessageInput struct {
	Body SendMessageBody
}

type SendMessageResponse struct {
	Reply     string    `json:"reply"`
	SessionID uuid.UUID `json:"sessionId"`
}

type SendMessageOutput struct {
	Body *SendMessageResponse
}

type GetHistoryInput struct {
	SessionID string `path:"sessionId" doc:"Session ID"`
}

type HistoryResponse struct {
	Messages  []*domain.Message `json:"messages"`
	SessionID uuid.UUID         `json:"sessionId"`
}

type GetHistoryOutput struct {
	Body *HistoryResponse
}

func RegisterChatRoutes(api huma.API, svc ChatService, bodyLimit int64) {
	huma.Register(api, huma.Operation{
		OperationID:  "send-message",
		Method:       http.MethodPost,
		Path:         "/chat/message",
		Summary:      "Send a message and get the agent reply",
		Tags:         []string{"Chat"},
		MaxBodyBytes: bodyLimit,
	}, func(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
		if input.Body.Message == nil {
			return nil, huma.Error400BadRequest("Message is required")
		}

		var sessionID *uuid.UUID
		if input.Body.SessionID != nil {
			id, err := parseSessionID(*input.Body.SessionID)
			if err != nil {
				return nil, huma.Error400BadRequest(msgInvalidSession)
			}
			sessionID = &id
		}

		res, err := svc.HandleTurn(ctx, *input.Body.Message, sessionID)
		if err != nil {
			return nil, turnError(ctx, err)
		}

		return &SendMessageOutput{Body: &SendMessageResponse{Reply: res.Reply, SessionID: res.SessionID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-history",
		Method:      http.MethodGet,
		Path:        "/chat/history/{sessionId}",
		Summary:     "Get the full transcript of a conversation",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *GetHistoryInput) (*GetHistoryOutput, error) {
		id, err := parseSessionID(input.SessionID)
		if err != nil {
			return nil, huma.Error400BadRequest(msgInvalidSession)
		}

		msgs, err := svc.History(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound(msgHistoryNotFound)
			}
			log.Ctx(ctx).Error().Err(err).Str("session_id", id.String()).Msg("v1.GetHistory: failed")
			return nil, huma.Error500InternalServerError(msgHistoryFailed)
		}

		return &GetHistoryOutput{Body: &HistoryResponse{Messages: msgs, SessionID: id}}, nil
	})
}

// parseSessionID accepts only the canonical 8-4-4-4-12 form, so the id
// echoed back is the string the client sent.
func parseSessionID(s string) (uuid.UUID, error) {
	if len(s) != canonicalUUIDLen {
		return uuid.Nil, errInvalidSessionID
	}
	return uuid.Parse(s)
}

// turnError maps orchestrator failures to responses. Raw upstream and store
// errors stay in the log.
func turnError(ctx context.Context, err error) error {
	var vErr *chat.ValidationError
	if errors.As(err, &vErr) {
		return huma.Error400BadRequest(vErr.Message)
	}
	if errors.Is(err, domain.ErrValidation) {
		return huma.Error400BadRequest("Validation failed")
	}

	var upErr *llm.UpstreamError
	if errors.As(err, &upErr) {
		return huma.Error500InternalServerError(upErr.UserMessage())
	}

	log.Ctx(ctx).Error().Err(err).Msg("v1.SendMessage: failed")
	return huma.Error500InternalServerError(msgUnexpected)
}
