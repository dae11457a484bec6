package models

import "time"

// Conversation groups the messages between one user and one character.
type Conversation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CharacterID string    `json:"character_id"`
	StartedAt   time.Time `json:"started_at"`
	Pinned      bool      `json:"pinned"`
	Archived    bool      `json:"archived"`
}

// ConversationPatch carries the mutable flags of a conversation.
type ConversationPatch struct {
	Pinned   *bool `json:"pinned,omitempty"`
	Archived *bool `json:"archived,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ConversationPatch) Empty() bool {
	return p.Pinned == nil && p.Archived == nil
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
