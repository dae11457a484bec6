package store

import (
	"context"
	"errors"

	"helix/internal/models"
)

// ErrNotFound matches every lookup that found no row.
var ErrNotFound = errors.New("not found")

// NotFoundError keeps the backend's own wording for a missing row.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a not-found error carrying msg.
func NotFound(msg string) error {
	return &NotFoundError{Message: msg}
}

// HistoryLimit is the number of recent messages replayed to the model.
const HistoryLimit = 20

// Store is the persistence surface over users, universes, characters,
// conversations, messages and feedback.
type Store interface {
	GetCharacter(ctx context.Context, id string) (*models.Character, error)
	GetUniverse(ctx context.Context, id string) (*models.Universe, error)
	ListUniverses(ctx context.Context) ([]models.Universe, error)
	ListCharacters(ctx context.Context, universeID string) ([]models.Character, error)

	// RecentMessages returns the newest limit messages, oldest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error)

	CreateConversation(ctx context.Context, userID, characterID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	// ListConversations orders pinned conversations first, then newest first.
	ListConversations(ctx context.Context, userID string, includeArchived bool) ([]models.Conversation, error)
	UpdateConversation(ctx context.Context, id string, patch models.ConversationPatch) (*models.Conversation, error)

	UpsertUser(ctx context.Context, user models.User) error
	UpsertFeedback(ctx context.Context, fb models.Feedback) error
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
