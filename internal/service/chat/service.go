package chat

import (
	"context"
	"encoding/json"
	"strings"

	"helix/internal/models"
	"helix/internal/store"

	"github.com/rs/zerolog"
)

// Store is the slice of persistence the relay needs.
type Store interface {
	GetCharacter(ctx context.Context, id string) (*models.Character, error)
	GetUniverse(ctx context.Context, id string) (*models.Universe, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	InsertMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	CreateConversation(ctx context.Context, userID, characterID string) (*models.Conversation, error)
}

// Completer generates a reply for a role-tagged transcript.
type Completer interface {
	Complete(ctx context.Context, turns []models.Turn) (string, error)
}

// Request is a validated-shape chat request. UserID is empty for anonymous callers.
type Request struct {
	ConversationID string
	CharacterID    string
	Text           string
	UserID         string
}

type Result struct {
	ConversationID string
	Reply          string
	Persona        models.Persona
	HistoryCount   int
	AIMessageID    string
	UsedFallback   bool
}

// Service relays one user turn to the completion provider in character.
type Service struct {
	store     Store
	completer Completer
}

// NewService builds the relay. A nil store reports ServerMisconfigured on every
// request; a nil completer always falls back.
func NewService(st Store, completer Completer) *Service {
	return &Service{store: st, completer: completer}
}

// Relay runs the request to completion. Only invalid input, a missing store and
// a failed character lookup are returned as errors; everything later degrades.
func (s *Service) Relay(ctx context.Context, req Request) (*Result, error) {
	logger := zerolog.Ctx(ctx)
	if strings.TrimSpace(req.Text) == "" {
		return nil, relayError(ErrInvalidInput, MsgInvalidText)
	}
	if s.store == nil {
		return nil, relayError(ErrServerMisconfigured, MsgMisconfigured)
	}

	result := &Result{ConversationID: req.ConversationID}

	var personaConfig json.RawMessage
	if req.CharacterID != "" {
		character, err := s.store.GetCharacter(ctx, req.CharacterID)
		if err != nil {
			return nil, relayError(ErrUpstreamLookup, err.Error())
		}
		result.Persona = models.Persona{CharacterID: character.ID, CharacterName: character.Name}
		if universe, err := s.store.GetUniverse(ctx, character.UniverseID); err == nil {
			result.Persona.UniverseName = universe.Name
		} else {
			logger.Debug().Err(err).Str("universe_id", character.UniverseID).Msg("universe lookup failed")
		}
		if character.HasPersonaConfig() {
			personaConfig = character.PersonaConfig
		}
	}

	var history []models.Message
	if req.ConversationID != "" {
		msgs, err := s.store.RecentMessages(ctx, req.ConversationID, store.HistoryLimit)
		if err != nil {
			logger.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("history read failed")
		} else {
			history = msgs
		}
	} else if req.CharacterID != "" && req.UserID != "" {
		result.ConversationID = s.startConversation(ctx, req)
	}
	result.HistoryCount = len(history)

	turns := BuildTranscript(BuildSystemPrompt(result.Persona, personaConfig), history, req.Text)
	result.Reply, result.UsedFallback = s.generate(ctx, turns, req.Text)

	if result.ConversationID != "" {
		msg, err := s.store.InsertMessage(ctx, models.Message{
			ConversationID: result.ConversationID,
			Sender:         models.SenderAI,
			Content:        result.Reply,
			UserID:         req.UserID,
		})
		if err != nil {
			logger.Error().Err(err).Str("conversation_id", result.ConversationID).Msg("persist reply failed")
		} else {
			result.AIMessageID = msg.ID
		}
	}
	return result, nil
}

// startConversation creates the conversation and stores the user's turn as its
// first message. The two writes are independent; a failed second write leaves
// an empty conversation behind.
func (s *Service) startConversation(ctx context.Context, req Request) string {
	logger := zerolog.Ctx(ctx)
	conv, err := s.store.CreateConversation(ctx, req.UserID, req.CharacterID)
	if err != nil {
		logger.Error().Err(err).Str("character_id", req.CharacterID).Msg("create conversation failed")
		return ""
	}
	_, err = s.store.InsertMessage(ctx, models.Message{
		ConversationID: conv.ID,
		Sender:         models.SenderUser,
		Content:        req.Text,
		UserID:         req.UserID,
	})
	if err != nil {
		logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("persist user turn failed")
	}
	return conv.ID
}

func (s *Service) generate(ctx context.Context, turns []models.Turn, text string) (string, bool) {
	if s.completer == nil {
		return FallbackReply(text), true
	}
	raw, err := s.completer.Complete(ctx, turns)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("completion failed, using fallback")
		return FallbackReply(text), true
	}
	reply := CleanReply(raw)
	if reply == "" {
		return FallbackReply(text), true
	}
	return reply, false
}
