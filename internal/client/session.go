package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SessionStore persists the current session id between runs.
type SessionStore interface {
	Load() (uuid.UUID, bool)
	Save(id uuid.UUID) error
	Clear() error
}

// MemorySessionStore keeps the session id for the life of the process.
type MemorySessionStore struct {
	mu sync.Mutex
	id *uuid.UUID
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) Load() (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == nil {
		return uuid.Nil, false
	}
	return *s.id, true
}

func (s *MemorySessionStore) Save(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = &id
	return nil
}

func (s *MemorySessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = nil
	return nil
}

// FileSessionStore keeps the session id in a small text file. A missing or
// unreadable file means no session.
type FileSessionStore struct {
	path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (s *FileSessionStore) Load() (uuid.UUID, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *FileSessionStore) Save(id uuid.UUID) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("client.FileSessionStore.Save: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("client.FileSessionStore.Save: %w", err)
	}
	return nil
}

func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("client.FileSessionStore.Clear: %w", err)
	}
	return nil
}
