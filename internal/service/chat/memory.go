package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/zhouzirui/emopulse/backend/internal/model/chat"
)

// MemoryStore keeps histories in process memory. Suitable for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]chat.Turn
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: make(map[string][]chat.Turn)}
}

// AppendTurn appends a turn to the user's history, creating it on first use.
func (s *MemoryStore) AppendTurn(_ context.Context, userID string, turn chat.Turn) error {
	userID, turn, err := prepareTurn(userID, turn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.history[userID] = append(s.history[userID], turn)
	s.mu.Unlock()
	return nil
}

// GetHistory returns a copy of the user's turns. Unknown users get an empty history.
func (s *MemoryStore) GetHistory(_ context.Context, userID string) ([]chat.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.history[userID]
	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}
