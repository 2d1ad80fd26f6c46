package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/emopulse/backend/internal/model/chat"
)

var (
	// ErrUserIDRequired is returned when a store call has no user id.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrStorage wraps every failure of the persistence backend.
	ErrStorage = errors.New("conversation storage failed")
)

// Store persists per-user conversation turns in append order.
//
// AppendTurn must be atomic per user: concurrent appends for the same user
// are all kept and land in some serial order.
type Store interface {
	AppendTurn(ctx context.Context, userID string, turn chat.Turn) error
	GetHistory(ctx context.Context, userID string) ([]chat.Turn, error)
}

func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// prepareTurn fills the identity fields a caller may leave empty.
func prepareTurn(userID string, turn chat.Turn) (string, chat.Turn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", turn, ErrUserIDRequired
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	return userID, turn, nil
}
