package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/deskchat/internal/domain"
)

const msgSendFailed = "Failed to send message. Please try again."

// Backend is the subset of API the agent needs.
type Backend interface {
	SendMessage(ctx context.Context, sc SessionContext, text string) (*SendResult, error)
	FetchHistory(ctx context.Context, sessionID uuid.UUID) (*History, error)
}

// Agent holds the client-side view of one conversation: the session id, an
// optimistic transcript and the loading and error flags a UI renders.
// It is safe for concurrent use.
type Agent struct {
	backend Backend
	store   SessionStore
	now     func() time.Time

	mu             sync.Mutex
	session        SessionContext
	messages       []domain.Message
	loading        bool
	historyLoading bool
	err            string
	nextLocalID    int64
}

// NewAgent creates an agent. Call Restore to pick up a persisted session.
func NewAgent(backend Backend, store SessionStore) *Agent {
	if store == nil {
		store = NewMemorySessionStore()
	}
	return &Agent{backend: backend, store: store, now: time.Now}
}

// Messages returns a copy of the transcript.
func (a *Agent) Messages() []domain.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.messages)
}

// Session returns the current session context.
func (a *Agent) Session() SessionContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session.SessionID == nil {
		return SessionContext{}
	}
	id := *a.session.SessionID
	return SessionContext{SessionID: &id}
}

func (a *Agent) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading
}

func (a *Agent) HistoryLoading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.historyLoading
}

// Err returns the last send failure shown to the user, or "".
func (a *Agent) Err() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Agent) ClearError() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = ""
}

// ClearSession forgets the session and empties the transcript.
func (a *Agent) ClearSession() error {
	a.mu.Lock()
	a.session = SessionContext{}
	a.messages = nil
	a.mu.Unlock()

	if err := a.store.Clear(); err != nil {
		return fmt.Errorf("client.Agent.ClearSession: %w", err)
	}
	return nil
}

// Restore loads the transcript of a persisted session. If the server cannot
// return it the persisted id is dropped and the agent starts fresh.
func (a *Agent) Restore(ctx context.Context) error {
	id, ok := a.store.Load()
	if !ok {
		return nil
	}

	a.mu.Lock()
	a.session = SessionContext{SessionID: &id}
	a.historyLoading = true
	a.mu.Unlock()

	hist, err := a.backend.FetchHistory(ctx, id)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.historyLoading = false

	if err != nil {
		log.Warn().Err(err).Str("session_id", id.String()).Msg("client: could not load history, starting fresh")
		a.session = SessionContext{}
		if clearErr := a.store.Clear(); clearErr != nil {
			return fmt.Errorf("client.Agent.Restore: clear session: %w", clearErr)
		}
		return nil
	}

	if len(hist.Messages) > 0 {
		a.messages = slices.Clone(hist.Messages)
	}
	return nil
}

// Send shows text as a provisional user turn, then either confirms it with
// the agent reply or takes it back and records the error.
func (a *Agent) Send(ctx context.Context, text string) error {
	a.mu.Lock()
	a.loading = true
	a.err = ""
	sc := a.session
	provisional := domain.Message{
		ID:        a.localID(),
		Sender:    domain.SenderUser,
		Content:   text,
		Platform:  domain.PlatformWeb,
		CreatedAt: a.now(),
	}
	if sc.SessionID != nil {
		provisional.ConversationID = *sc.SessionID
	}
	a.messages = append(a.messages, provisional)
	a.mu.Unlock()

	res, err := a.backend.SendMessage(ctx, sc, text)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loading = false

	if err != nil {
		a.messages = slices.DeleteFunc(a.messages, func(m domain.Message) bool {
			return m.ID == provisional.ID
		})
		a.err = userMessage(err)
		return fmt.Errorf("client.Agent.Send: %w", err)
	}

	if sc.SessionID == nil || *sc.SessionID != res.SessionID {
		id := res.SessionID
		a.session = SessionContext{SessionID: &id}
		if saveErr := a.store.Save(id); saveErr != nil {
			log.Warn().Err(saveErr).Msg("client: could not persist session id")
		}
	}

	for i := range a.messages {
		if a.messages[i].ID == provisional.ID {
			a.messages[i].ConversationID = res.SessionID
		}
	}
	a.messages = append(a.messages, domain.Message{
		ID:             a.localID(),
		ConversationID: res.SessionID,
		Sender:         domain.SenderAgent,
		Content:        res.Reply,
		Platform:       domain.PlatformWeb,
		CreatedAt:      a.now(),
	})
	return nil
}

// localID hands out negative ids so provisional turns never collide with
// store-assigned ones. Callers hold mu.
func (a *Agent) localID() int64 {
	a.nextLocalID--
	return a.nextLocalID
}

func userMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgSendFailed
}
