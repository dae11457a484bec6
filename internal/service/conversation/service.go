package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"helix/internal/models"
	"helix/internal/store"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnknownCharacter = errors.New("unknown character")
)

const (
	MinRating = 1
	MaxRating = 5
)

// Service owns the signed-in user's conversations, messages and feedback.
// Rows belonging to other users are reported as not found.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// SyncUser records the user row on sign-in.
func (s *Service) SyncUser(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.store.UpsertUser(ctx, user)
}

func (s *Service) List(ctx context.Context, userID string, includeArchived bool) ([]models.Conversation, error) {
	return s.store.ListConversations(ctx, userID, includeArchived)
}

// Latest returns the most recently started, unarchived conversation.
func (s *Service) Latest(ctx context.Context, userID string) (*models.Conversation, error) {
	conversations, err := s.store.ListConversations(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	var latest *models.Conversation
	for i := range conversations {
		if latest == nil || conversations[i].StartedAt.After(latest.StartedAt) {
			latest = &conversations[i]
		}
	}
	if latest == nil {
		return nil, store.NotFound("no conversations")
	}
	return latest, nil
}

func (s *Service) Create(ctx context.Context, userID, characterID string) (*models.Conversation, error) {
	if strings.TrimSpace(characterID) == "" {
		return nil, fmt.Errorf("%w: characterId required", ErrInvalidInput)
	}
	if _, err := s.store.GetCharacter(ctx, characterID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCharacter, characterID)
		}
		return nil, err
	}
	return s.store.CreateConversation(ctx, userID, characterID)
}

func (s *Service) Update(ctx context.Context, userID, conversationID string, patch models.ConversationPatch) (*models.Conversation, error) {
	conv, err := s.owned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return conv, nil
	}
	return s.store.UpdateConversation(ctx, conversationID, patch)
}

func (s *Service) Messages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// PostMessage appends the user's own turn to a conversation.
func (s *Service) PostMessage(ctx context.Context, userID, conversationID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text required", ErrInvalidInput)
	}
	if _, err := s.owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.InsertMessage(ctx, models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderUser,
		Content:        text,
		UserID:         userID,
	})
}

// RateMessage stores the caller's rating of an AI reply, replacing any earlier one.
func (s *Service) RateMessage(ctx context.Context, userID, messageID string, rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidInput, MinRating, MaxRating)
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Sender != models.SenderAI {
		return fmt.Errorf("%w: only replies can be rated", ErrInvalidInput)
	}
	if _, err := s.owned(ctx, userID, msg.ConversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.NotFound("message not found")
		}
		return err
	}
	return s.store.UpsertFeedback(ctx, models.Feedback{MessageID: messageID, UserID: userID, Rating: rating})
}

func (s *Service) owned(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, store.NotFound("conversation not found")
	}
	return conv, nil
}
