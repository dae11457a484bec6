package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"helix/internal/models"
	"helix/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	characters    map[string]*models.Character
	universes     map[string]*models.Universe
	messages      map[string][]models.Message
	conversations []models.Conversation

	historyErr error
	insertErr  error
	createErr  error
	nextID     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		characters: map[string]*models.Character{
			"kakashi": {ID: "kakashi", Name: "Kakashi", UniverseID: "leaf", PersonaConfig: json.RawMessage(`{"tone":"relaxed"}`)},
			"drifter": {ID: "drifter", Name: "Drifter", UniverseID: "lost"},
		},
		universes: map[string]*models.Universe{"leaf": {ID: "leaf", Name: "Hidden Leaf"}},
		messages:  map[string][]models.Message{},
	}
}

func (f *fakeStore) GetCharacter(_ context.Context, id string) (*models.Character, error) {
	c, ok := f.characters[id]
	if !ok {
		return nil, store.NotFound("JSON object requested, multiple (or no) rows returned")
	}
	return c, nil
}

func (f *fakeStore) GetUniverse(_ context.Context, id string) (*models.Universe, error) {
	u, ok := f.universes[id]
	if !ok {
		return nil, store.NotFound("universe not found")
	}
	return u, nil
}

func (f *fakeStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	msgs := f.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.Message(nil), msgs...), nil
}

func (f *fakeStore) InsertMessage(_ context.Context, msg models.Message) (*models.Message, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	msg.ID = fmt.Sprintf("msg-%d", f.nextID)
	msg.Timestamp = time.Now()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], msg)
	return &msg, nil
}

func (f *fakeStore) CreateConversation(_ context.Context, userID, characterID string) (*models.Conversation, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	conv := models.Conversation{ID: fmt.Sprintf("conv-%d", f.nextID), UserID: userID, CharacterID: characterID, StartedAt: time.Now()}
	f.conversations = append(f.conversations, conv)
	return &conv, nil
}

type fakeCompleter struct {
	reply string
	err   error
	turns []models.Turn
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, turns []models.Turn) (string, error) {
	f.calls++
	f.turns = turns
	return f.reply, f.err
}

func TestRelayRejectsBlankText(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, &fakeCompleter{reply: "x"})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Relay(context.Background(), Request{Text: text, ConversationID: "c1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Equal(t, "Invalid 'text'", err.Error())
	}
	assert.Empty(t, st.messages)
}

func TestRelayWithoutStoreIsMisconfigured(t *testing.T) {
	_, err := NewService(nil, nil).Relay(context.Background(), Request{Text: "hi"})
	assert.ErrorIs(t, err, ErrServerMisconfigured)
	assert.Equal(t, "Server not configured: SUPABASE_SERVICE_ROLE_KEY missing", err.Error())
}

func TestRelayAnonymousFallback(t *testing.T) {
	res, err := NewService(newFakeStore(), nil).Relay(context.Background(), Request{Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, &Result{Reply: "Got it: Hello", UsedFallback: true}, res)
}

func TestRelayUnknownCharacterIsLookupError(t *testing.T) {
	completer := &fakeCompleter{reply: "x"}
	_, err := NewService(newFakeStore(), completer).Relay(context.Background(), Request{Text: "hi", CharacterID: "nobody"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamLookup)
	assert.Equal(t, "JSON object requested, multiple (or no) rows returned", err.Error())
	assert.Zero(t, completer.calls)
}

func TestRelayBuildsPersonaHistoryAndPersists(t *testing.T) {
	st := newFakeStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		sender := models.SenderUser
		if i%2 == 1 {
			sender = models.SenderAI
		}
		st.messages["conv-a"] = append(st.messages["conv-a"], models.Message{
			ID: fmt.Sprintf("old-%d", i), ConversationID: "conv-a", Sender: sender,
			Content: fmt.Sprintf("turn %d", i), Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	completer := &fakeCompleter{reply: "Yo.<|im_end|>"}
	svc := NewService(st, completer)

	res, err := svc.Relay(context.Background(), Request{
		Text: "What are you reading?", ConversationID: "conv-a", CharacterID: "kakashi", UserID: "user-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "conv-a", res.ConversationID)
	assert.Equal(t, "Yo.", res.Reply)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 20, res.HistoryCount)
	assert.Equal(t, models.Persona{CharacterID: "kakashi", CharacterName: "Kakashi", UniverseName: "Hidden Leaf"}, res.Persona)

	require.Len(t, completer.turns, 22)
	assert.Equal(t, models.RoleSystem, completer.turns[0].Role)
	assert.Contains(t, completer.turns[0].Content, "You are Kakashi from Hidden Leaf")
	assert.Contains(t, completer.turns[0].Content, `Persona config: {"tone":"relaxed"}`)
	assert.Equal(t, models.Turn{Role: models.RoleAssistant, Content: "turn 5"}, completer.turns[1])
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "turn 24"}, completer.turns[20])
	assert.Equal(t, models.Turn{Role: models.RoleUser, Content: "What are you reading?"}, completer.turns[21])

	stored := st.messages["conv-a"]
	require.Len(t, stored, 26)
	last := stored[len(stored)-1]
	assert.Equal(t, res.AIMessageID, last.ID)
	assert.Equal(t, models.SenderAI, last.Sender)
	assert.Equal(t, "Yo.", last.Content)
	assert.Equal(t, "user-1", last.UserID)
}

func TestRelayDegradesOnProviderFailure(t *testing.T) {
	for name, completer := range map[string]*fakeCompleter{
		"error":        {err: errors.New("503 from upstream")},
		"empty output": {reply: " <|eot_id|> "},
	} {
		t.Run(name, func(t *testing.T) {
			st := newFakeStore()
			res, err := NewService(st, completer).Relay(context.Background(), Request{Text: "Hello", ConversationID: "conv-b"})
			require.NoError(t, err)
			assert.True(t, res.UsedFallback)
			assert.Equal(t, "Got it: Hello", res.Reply)
			assert.NotEmpty(t, res.AIMessageID)
			assert.Equal(t, "Got it: Hello", st.messages["conv-b"][0].Content)
		})
	}
}

func TestRelaySwallowsPersistenceAndHistoryFailures(t *testing.T) {
	st := newFakeStore()
	st.historyErr = errors.New("connection reset")
	st.insertErr = errors.New("insert denied")

	res, err := NewService(st, &fakeCompleter{reply: "Still here."}).Relay(context.Background(), Request{Text: "hi", ConversationID: "conv-c"})
	require.NoError(t, err)
	assert.Equal(t, "Still here.", res.Reply)
	assert.Zero(t, res.HistoryCount)
	assert.Empty(t, res.AIMessageID)
	assert.Equal(t, "conv-c", res.ConversationID)
}

func TestRelayUniverseLookupIsOptional(t *testing.T) {
	res, err := NewService(newFakeStore(), nil).Relay(context.Background(), Request{Text: "hi", CharacterID: "drifter"})
	require.NoError(t, err)
	assert.Equal(t, models.Persona{CharacterID: "drifter", CharacterName: "Drifter"}, res.Persona)
	assert.Empty(t, res.ConversationID)
}

func TestRelayStartsConversationForSignedInCaller(t *testing.T) {
	st := newFakeStore()
	completer := &fakeCompleter{reply: "Maa, maa."}
	res, err := NewService(st, completer).Relay(context.Background(), Request{Text: "Sensei!", CharacterID: "kakashi", UserID: "user-7"})
	require.NoError(t, err)

	require.Len(t, st.conversations, 1)
	conv := st.conversations[0]
	assert.Equal(t, conv.ID, res.ConversationID)
	assert.Equal(t, "user-7", conv.UserID)
	assert.Zero(t, res.HistoryCount)

	msgs := st.messages[conv.ID]
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "Sensei!", msgs[0].Content)
	assert.Equal(t, models.SenderAI, msgs[1].Sender)
	assert.Equal(t, res.AIMessageID, msgs[1].ID)

	// the new user turn is sent once, not replayed from history
	require.Len(t, completer.turns, 2)
	assert.Equal(t, "Sensei!", completer.turns[1].Content)
}

func TestRelayConversationCreationFailureContinues(t *testing.T) {
	st := newFakeStore()
	st.createErr = errors.New("conversations table missing")
	res, err := NewService(st, nil).Relay(context.Background(), Request{Text: "hi", CharacterID: "kakashi", UserID: "user-7"})
	require.NoError(t, err)
	assert.Empty(t, res.ConversationID)
	assert.Empty(t, res.AIMessageID)
	assert.True(t, res.UsedFallback)
}
