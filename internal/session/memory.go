package session

import (
	"context"
	"sync"

	"skein/internal/ai"
)

// MemoryStore is the in-process fallback used when Redis is not configured.
// Histories live for the lifetime of the process.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string][]ai.Message
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]ai.Message)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, messages ...ai.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], messages...)
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]ai.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Message(nil), s.sessions[sessionID]...), nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
