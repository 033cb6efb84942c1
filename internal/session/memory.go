package session

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore keeps conversations in process memory. Used for development
// and tests; nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if data, ok := s.data[userID]; ok {
		return data, nil
	}
	return emptyArray, nil
}

func (s *MemoryStore) Save(ctx context.Context, userID string, conversations json.RawMessage) error {
	data, err := validateConversations(conversations)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = data
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
