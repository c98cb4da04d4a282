package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/deskchat/internal/api/v1"
	"github.com/gosuda/deskchat/internal/chat"
	"github.com/gosuda/deskchat/internal/domain"
	"github.com/gosuda/deskchat/internal/store/sqlite"
)

type cannedCompleter struct {
	reply    string
	histories [][]*domain.Message
}

func (c *cannedCompleter) Complete(_ context.Context, _ string, history []*domain.Message) (string, error) {
	c.histories = append(c.histories, history)
	return c.reply, nil
}

func TestSendThenHistory_SQLite(t *testing.T) {
	t.Parallel()

	store, err := sqlite.New(t.Context(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(t.Context()))

	completer := &cannedCompleter{reply: "Could you share your order ID?"}
	orch := chat.NewOrchestrator(store.Conversations(), store.Messages(), completer)

	_, api := humatest.New(t, v1.NewConfig())
	v1.RegisterChatRoutes(api, orch, 10*1024)

	resp := api.Post("/chat/message", map[string]any{"message": "Where is my order?"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var sent v1.SendMessageResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sent))
	assert.Equal(t, "Could you share your order ID?", sent.Reply)
	assert.NotEqual(t, uuid.Nil, sent.SessionID)

	resp = api.Get("/chat/history/" + sent.SessionID.String())
	require.Equal(t, http.StatusOK, resp.Code)

	var hist struct {
		Messages  []domain.Message `json:"messages"`
		SessionID uuid.UUID        `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &hist))
	assert.Equal(t, sent.SessionID, hist.SessionID)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, domain.SenderUser, hist.Messages[0].Sender)
	assert.Equal(t, "Where is my order?", hist.Messages[0].Content)
	assert.Equal(t, domain.SenderAgent, hist.Messages[1].Sender)
	assert.Equal(t, "Could you share your order ID?", hist.Messages[1].Content)

	// The second turn sees the first exchange as context.
	resp = api.Post("/chat/message", map[string]any{"message": "It is #1234", "sessionId": sent.SessionID.String()})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, completer.histories, 2)
	assert.Empty(t, completer.histories[0])
	assert.Len(t, completer.histories[1], 2)

	resp = api.Get("/chat/history/" + uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
