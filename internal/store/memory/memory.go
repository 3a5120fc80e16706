package memory

import (
	"context"
	"sync"

	"github.com/dugoutlabs/dugout-client/internal/store"
)

// Store keeps credentials in process memory only. It backs the session-scoped
// storage: credentials vanish when the process exits.
type Store struct {
	mu    sync.Mutex
	creds *store.Credentials
}

// New creates an empty in-memory credential store.
func New() *Store {
	return &Store{}
}

func (s *Store) Save(_ context.Context, creds store.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := creds
	s.creds = &c
	return nil
}

func (s *Store) Load(_ context.Context) (*store.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		return nil, store.ErrNoCredentials
	}
	c := *s.creds
	return &c, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	return nil
}
