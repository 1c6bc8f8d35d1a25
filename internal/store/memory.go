package store

import (
	"context"
	"sync"

	"github.com/destucr/chatroom-backend/internal/message"
)

type MemoryStore struct {
	mu       sync.RWMutex
	messages []message.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Return a copy to avoid race conditions
	out := make([]message.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
