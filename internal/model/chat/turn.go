package chat

import (
	"time"

	"github.com/zhouzirui/emopulse/backend/internal/model/emotion"
)

// Turn is one persisted user utterance / assistant reply pair.
type Turn struct {
	ID           string        `json:"id" bson:"id"`
	Timestamp    time.Time     `json:"timestamp" bson:"timestamp"`
	UserMessage  string        `json:"user_message" bson:"user_message"`
	AIResponse   string        `json:"ai_response" bson:"ai_response"`
	VoiceEmotion emotion.Label `json:"voice_emotion,omitempty" bson:"voice_emotion,omitempty"`
}

// History is the per-user conversation document. Turns are kept in append order.
type History struct {
	UserID      string    `json:"user_id" bson:"user_id"`
	ChatHistory []Turn    `json:"chat_history" bson:"chat_history"`
	CreatedAt   time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// LastN returns at most n trailing turns. n < 1 returns nil.
func LastN(turns []Turn, n int) []Turn {
	if n < 1 || len(turns) == 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
