package client_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/deskchat/internal/client"
	"github.com/gosuda/deskchat/internal/domain"
)

func TestAPI_SendMessage(t *testing.T) {
	t.Parallel()

	t.Run("new session omits sessionId", func(t *testing.T) {
		t.Parallel()

		sid := uuid.New()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/chat/message", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Where is my order?", body["message"])
			_, hasSession := body["sessionId"]
			assert.False(t, hasSession)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"reply": "Share your order ID.", "sessionId": sid.String()})
		}))
		t.Cleanup(srv.Close)

		res, err := client.NewAPI(srv.URL+"/", nil).SendMessage(t.Context(), client.SessionContext{}, "Where is my order?")
		require.NoError(t, err)
		assert.Equal(t, "Share your order ID.", res.Reply)
		assert.Equal(t, sid, res.SessionID)
	})

	t.Run("existing session is sent", func(t *testing.T) {
		t.Parallel()

		sid := uuid.New()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, sid.String(), body["sessionId"])
			_ = json.NewEncoder(w).Encode(map[string]string{"reply": "ok", "sessionId": sid.String()})
		}))
		t.Cleanup(srv.Close)

		_, err := client.NewAPI(srv.URL, nil).SendMessage(t.Context(), client.SessionContext{SessionID: &sid}, "hi")
		require.NoError(t, err)
	})

	t.Run("error body is decoded", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Message cannot be empty"}`))
		}))
		t.Cleanup(srv.Close)

		_, err := client.NewAPI(srv.URL, nil).SendMessage(t.Context(), client.SessionContext{}, "   ")

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Equal(t, "Message cannot be empty", apiErr.Message)
	})

	t.Run("non json error falls back", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))
		t.Cleanup(srv.Close)

		_, err := client.NewAPI(srv.URL, nil).SendMessage(t.Context(), client.SessionContext{}, "hi")

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Equal(t, "Failed to send message", apiErr.Message)
	})
}

func TestAPI_FetchHistory(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		sid := uuid.New()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/history/"+sid.String(), r.URL.Path)
			_, _ = w.Write([]byte(`{"sessionId":"` + sid.String() + `","messages":[` +
				`{"id":1,"conversation_id":"` + sid.String() + `","sender":"user","content":"hi","platform":"web","created_at":"2025-01-01T00:00:00Z"},` +
				`{"id":2,"conversation_id":"` + sid.String() + `","sender":"agent","content":"hello!","platform":"web","created_at":"2025-01-01T00:00:01Z"}]}`))
		}))
		t.Cleanup(srv.Close)

		hist, err := client.NewAPI(srv.URL, nil).FetchHistory(t.Context(), sid)
		require.NoError(t, err)
		assert.Equal(t, sid, hist.SessionID)
		require.Len(t, hist.Messages, 2)
		assert.Equal(t, domain.SenderUser, hist.Messages[0].Sender)
		assert.Equal(t, domain.SenderAgent, hist.Messages[1].Sender)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Conversation not found"}`))
		}))
		t.Cleanup(srv.Close)

		_, err := client.NewAPI(srv.URL, nil).FetchHistory(t.Context(), uuid.New())

		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "Conversation not found", apiErr.Message)
	})

	t.Run("missing messages decode as empty", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"sessionId":"` + uuid.NewString() + `"}`))
		}))
		t.Cleanup(srv.Close)

		hist, err := client.NewAPI(srv.URL, nil).FetchHistory(t.Context(), uuid.New())
		require.NoError(t, err)
		assert.NotNil(t, hist.Messages)
		assert.Empty(t, hist.Messages)
	})
}

func newStubChatServer(t *testing.T, sid uuid.UUID) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "echo: " + body.Message, "sessionId": sid.String()})
	}))
	t.Cleanup(srv.Close)
	return srv
}
