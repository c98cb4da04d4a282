// Package client is the consumer side of the chat API: a thin HTTP client and
// the session agent that keeps an optimistic transcript for a UI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/deskchat/internal/domain"
)

const (
	defaultTimeout = 90 * time.Second
	maxErrorBody   = 64 * 1024
)

// SessionContext carries the caller's session into every call. A nil
// SessionID asks the server to start a new conversation.
type SessionContext struct {
	SessionID *uuid.UUID
}

// SendResult is a successful exchange.
type SendResult struct {
	Reply     string    `json:"reply"`
	SessionID uuid.UUID `json:"sessionId"`
}

// History is the full transcript of a conversation.
type History struct {
	Messages  []domain.Message `json:"messages"`
	SessionID uuid.UUID        `json:"sessionId"`
}

// APIError is a non-2xx response. Message is the server's "error" field, or
// a fallback when the body has none.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: %d %s", e.Status, e.Message)
}

// API talks to the chat endpoints under baseURL.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI returns a client for baseURL (for example "http://localhost:3001").
// A nil httpClient gets one with a timeout long enough for server-side retries.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type sendRequest struct {
	Message   string     `json:"message"`
	SessionID *uuid.UUID `json:"sessionId,omitempty"`
}

// SendMessage posts one user utterance in the given session.
func (a *API) SendMessage(ctx context.Context, sc SessionContext, text string) (*SendResult, error) {
	payload, err := json.Marshal(sendRequest{Message: text, SessionID: sc.SessionID})
	if err != nil {
		return nil, fmt.Errorf("client.API.SendMessage: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/message", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("client.API.SendMessage: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out SendResult
	if err := a.do(req, "Failed to send message", &out); err != nil {
		return nil, fmt.Errorf("client.API.SendMessage: %w", err)
	}
	return &out, nil
}

// FetchHistory returns the transcript of sessionID.
func (a *API) FetchHistory(ctx context.Context, sessionID uuid.UUID) (*History, error) {
	endpoint := a.baseURL + "/chat/history/" + url.PathEscape(sessionID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("client.API.FetchHistory: %w", err)
	}

	var out History
	if err := a.do(req, "Failed to fetch history", &out); err != nil {
		return nil, fmt.Errorf("client.API.FetchHistory: %w", err)
	}
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return &out, nil
}

func (a *API) do(req *http.Request, fallback string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp, fallback)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, fallback string) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: fallback}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}
