// Package ws streams conversation turn events to websocket clients.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	redisstore "github.com/gosuda/deskchat/internal/store/redis"
)

// Subscriber delivers payloads published on a channel until ctx ends or
// cleanup is called.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by pub/sub.
type Hub struct {
	subscriber     Subscriber
	originPatterns []string
}

// NewHub creates a hub. originPatterns follow websocket.AcceptOptions; empty
// means same-origin only.
func NewHub(subscriber Subscriber, originPatterns ...string) *Hub {
	return &Hub{subscriber: subscriber, originPatterns: originPatterns}
}

// ServeConversation streams the turn events of one conversation.
// Subscribes to channel "conversation:<sessionId>".
func (h *Hub) ServeConversation(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// Reads are never expected; CloseRead handles control frames and cancels
	// the context when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := h.stream(ctx, conn, redisstore.ConversationChannel(sessionID)); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("websocket stream ended")
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, channel string) error {
	messages, cleanup, err := h.subscriber.Subscribe(ctx, channel)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return fmt.Errorf("ws.Hub.stream: subscribe: %w", err)
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return nil
		case msg, ok := <-messages:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return fmt.Errorf("ws.Hub.stream: write: %w", err)
			}
		}
	}
}
