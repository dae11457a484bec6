package models

import "time"

// Sender tags who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is one immutable entry of a conversation, ordered by Timestamp.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Content        string    `json:"content"`
	UserID         string    `json:"user_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Role is the transcript role handed to the completion provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a role-tagged transcript entry.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// TurnFromMessage maps a stored message to its transcript role.
func TurnFromMessage(m Message) Turn {
	role := RoleAssistant
	if m.Sender == SenderUser {
		role = RoleUser
	}
	return Turn{Role: role, Content: m.Content}
}

// Feedback is a write-only rating of an AI message.
type Feedback struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
}
