package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"helix/internal/models"
	"helix/internal/supabase"
)

// RESTStore implements Store against the managed backend's table API.
type RESTStore struct {
	client *supabase.Client
}

// NewRESTStore expects a client authenticated with the privileged key.
func NewRESTStore(client *supabase.Client) *RESTStore {
	return &RESTStore{client: client}
}

// lookupErr turns a "no rows" response into a NotFoundError with the upstream wording.
func lookupErr(op string, err error) error {
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		if apiErr.NoRows() {
			return NotFound(apiErr.Error())
		}
		return apiErr
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *RESTStore) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	var c models.Character
	err := s.client.From("characters").
		Select("id,name,universe_id,persona_config").
		Eq("id", id).
		Single(ctx, &c)
	if err != nil {
		return nil, lookupErr("get character", err)
	}
	return &c, nil
}

func (s *RESTStore) GetUniverse(ctx context.Context, id string) (*models.Universe, error) {
	var u models.Universe
	if err := s.client.From("universes").Select("id,name").Eq("id", id).Single(ctx, &u); err != nil {
		return nil, lookupErr("get universe", err)
	}
	return &u, nil
}

func (s *RESTStore) ListUniverses(ctx context.Context) ([]models.Universe, error) {
	universes := []models.Universe{}
	if err := s.client.From("universes").Select("id,name").Order("name", true).Execute(ctx, &universes); err != nil {
		return nil, lookupErr("list universes", err)
	}
	return universes, nil
}

func (s *RESTStore) ListCharacters(ctx context.Context, universeID string) ([]models.Character, error) {
	characters := []models.Character{}
	err := s.client.From("characters").
		Select("id,name,universe_id,persona_config").
		Eq("universe_id", universeID).
		Order("name", true).
		Execute(ctx, &characters)
	if err != nil {
		return nil, lookupErr("list characters", err)
	}
	return characters, nil
}

const messageSelect = "id,conversation_id,sender,content,user_id,timestamp"

func (s *RESTStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.client.From("messages").
		Select(messageSelect).
		Eq("conversation_id", conversationID).
		Order("timestamp", false).
		Limit(limit).
		Execute(ctx, &messages)
	if err != nil {
		return nil, lookupErr("recent messages", err)
	}
	reverse(messages)
	return messages, nil
}

func (s *RESTStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.client.From("messages").
		Select(messageSelect).
		Eq("conversation_id", conversationID).
		Order("timestamp", true).
		Execute(ctx, &messages)
	if err != nil {
		return nil, lookupErr("list messages", err)
	}
	return messages, nil
}

func (s *RESTStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := s.client.From("messages").Select(messageSelect).Eq("id", id).Single(ctx, &m); err != nil {
		return nil, lookupErr("get message", err)
	}
	return &m, nil
}

// InsertMessage leaves id and timestamp to the table defaults when empty.
func (s *RESTStore) InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	row := map[string]any{
		"conversation_id": msg.ConversationID,
		"sender":          msg.Sender,
		"content":         msg.Content,
	}
	if msg.ID != "" {
		row["id"] = msg.ID
	}
	if msg.UserID != "" {
		row["user_id"] = msg.UserID
	}
	if !msg.Timestamp.IsZero() {
		row["timestamp"] = msg.Timestamp
	}
	var out models.Message
	if err := s.client.From("messages").Select(messageSelect).Insert(ctx, row, &out); err != nil {
		return nil, lookupErr("insert message", err)
	}
	return &out, nil
}

const conversationSelect = "id,user_id,character_id,started_at,pinned,archived"

func (s *RESTStore) CreateConversation(ctx context.Context, userID, characterID string) (*models.Conversation, error) {
	row := map[string]any{
		"user_id":      userID,
		"character_id": characterID,
		"started_at":   time.Now().UTC(),
	}
	var out models.Conversation
	if err := s.client.From("conversations").Select(conversationSelect).Insert(ctx, row, &out); err != nil {
		return nil, lookupErr("create conversation", err)
	}
	return &out, nil
}

func (s *RESTStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.client.From("conversations").Select(conversationSelect).Eq("id", id).Single(ctx, &c); err != nil {
		return nil, lookupErr("get conversation", err)
	}
	return &c, nil
}

func (s *RESTStore) ListConversations(ctx context.Context, userID string, includeArchived bool) ([]models.Conversation, error) {
	q := s.client.From("conversations").
		Select(conversationSelect).
		Eq("user_id", userID)
	if !includeArchived {
		q = q.Is("archived", strconv.FormatBool(false))
	}
	conversations := []models.Conversation{}
	err := q.Order("pinned", false).Order("started_at", false).Execute(ctx, &conversations)
	if err != nil {
		return nil, lookupErr("list conversations", err)
	}
	return conversations, nil
}

func (s *RESTStore) UpdateConversation(ctx context.Context, id string, patch models.ConversationPatch) (*models.Conversation, error) {
	if patch.Empty() {
		return s.GetConversation(ctx, id)
	}
	var out models.Conversation
	err := s.client.From("conversations").
		Select(conversationSelect).
		Eq("id", id).
		Update(ctx, patch, &out)
	if err != nil {
		return nil, lookupErr("update conversation", err)
	}
	return &out, nil
}

func (s *RESTStore) UpsertUser(ctx context.Context, user models.User) error {
	if err := s.client.From("users").OnConflict("id").Upsert(ctx, user); err != nil {
		return lookupErr("upsert user", err)
	}
	return nil
}

func (s *RESTStore) UpsertFeedback(ctx context.Context, fb models.Feedback) error {
	if err := s.client.From("feedback").OnConflict("message_id,user_id").Upsert(ctx, fb); err != nil {
		return lookupErr("upsert feedback", err)
	}
	return nil
}
