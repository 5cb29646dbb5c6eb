package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"

	"studyhub/internal/models"
)

// Session is the client-side ephemeral state: the current token pair and a
// snapshot of the signed-in user. Owned by the Client, persisted through a
// SessionStore.
type Session struct {
	Tokens models.TokenPair `json:"tokens"`
	User   models.User      `json:"user"`
}

// Authenticated is the route guard predicate: a stored token pair plus a
// stored user snapshot. No server round-trip, the server stays the
// authority on every actual request.
func (s Session) Authenticated() bool {
	return s.Tokens.Access.Value != "" && s.Tokens.Refresh.Value != "" && s.User.ID != uuid.Nil
}

// SessionStore persists the session between runs. Implementations must be
// safe for concurrent use.
type SessionStore interface {
	// Load returns the stored session and whether one exists
	Load() (Session, bool, error)
	Save(session Session) error
	Clear() error
}

// MemStore keeps the session in memory, suitable for tests and short-lived
// programs
type MemStore struct {
	mu      sync.Mutex
	session Session
	ok      bool
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Load() (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.ok, nil
}

func (s *MemStore) Save(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.ok = true
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = Session{}
	s.ok = false
	return nil
}

// FileStore keeps the session in a JSON file
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return Session{}, false, nil
	default:
		return Session{}, false, fmt.Errorf("read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("decode session file: %w", err)
	}

	return session, true, nil
}

func (s *FileStore) Save(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}

	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
