package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/deskchat/internal/domain"
)

// TurnEventType names the kind of a live conversation event.
type TurnEventType string

const (
	EventTurnAppended  TurnEventType = "turn_appended"
	EventUpstreamError TurnEventType = "upstream_error"
)

// TurnEvent is published to a conversation's live stream.
type TurnEvent struct {
	Type      TurnEventType   `json:"type"`
	SessionID uuid.UUID       `json:"sessionId"`
	Message   *domain.Message `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	At        time.Time       `json:"at"`
}
