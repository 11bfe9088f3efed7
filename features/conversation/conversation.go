package conversation

import (
	"encoding/json"
	"time"
)

// Conversation is one question-and-answer thread.
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	MessageCount   int       `json:"message_count"`
}

// Message is one stored turn. Sources holds the JSON-encoded page references
// an assistant answer was grounded in, null for user turns.
type Message struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   json.RawMessage `json:"sources"`
	CreatedAt time.Time       `json:"created_at"`
}
