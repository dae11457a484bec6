package chat

import (
	"encoding/json"
	"strings"
	"testing"

	"helix/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSystemPromptOmittedWithoutPersona(t *testing.T) {
	assert.Empty(t, BuildSystemPrompt(models.Persona{}, nil))
	assert.Empty(t, BuildSystemPrompt(models.Persona{}, json.RawMessage("null")))
}

func TestBuildSystemPromptNameAndUniverse(t *testing.T) {
	prompt := BuildSystemPrompt(models.Persona{CharacterName: "Levi", UniverseName: "Paradis"}, nil)
	assert.True(t, strings.HasPrefix(prompt, "You are Levi from Paradis. Reply in-character."))
	assert.Contains(t, prompt, "first person")
	assert.Contains(t, prompt, "language model")
	assert.NotContains(t, prompt, "Persona config")

	prompt = BuildSystemPrompt(models.Persona{CharacterName: "Levi"}, nil)
	assert.True(t, strings.HasPrefix(prompt, "You are Levi. Reply in-character."))
}

func TestBuildSystemPromptGuidance(t *testing.T) {
	cfg := json.RawMessage(`{
		"voice": "curt",
		"explanationStyle": "short and blunt",
		"knowledge_scope": "only events up to the basement reveal",
		"speech_quirks": ["tch", "brat"],
		"age": 30
	}`)
	prompt := BuildSystemPrompt(models.Persona{CharacterName: "Levi"}, cfg)

	assert.Contains(t, prompt, "- Voice: curt")
	assert.Contains(t, prompt, "- Explanation style: short and blunt")
	assert.Contains(t, prompt, "- Knowledge scope: only events up to the basement reveal")
	assert.Contains(t, prompt, "- Speech quirks: tch; brat")
	assert.NotContains(t, prompt, "- Tone")
	assert.Contains(t, prompt, `Persona config: {"voice":"curt",`)
	assert.Less(t, strings.Index(prompt, "- Voice"), strings.Index(prompt, "- Explanation style"))
}

func TestBuildSystemPromptTruncatesConfig(t *testing.T) {
	cfg, err := json.Marshal(map[string]string{"backstory": strings.Repeat("x", 5000)})
	require.NoError(t, err)

	prompt := BuildSystemPrompt(models.Persona{}, cfg)
	idx := strings.Index(prompt, "Persona config: ")
	require.GreaterOrEqual(t, idx, 0)
	serialized := prompt[idx+len("Persona config: "):]
	assert.Len(t, []rune(serialized), maxPersonaConfigChars)
	assert.True(t, strings.HasPrefix(serialized, `{"backstory":"xxx`))
}

func TestBuildTranscript(t *testing.T) {
	history := []models.Message{
		{Sender: models.SenderUser, Content: "hi"},
		{Sender: models.SenderAI, Content: "yo"},
	}
	turns := BuildTranscript("sys", history, "again")
	assert.Equal(t, []models.Turn{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "yo"},
		{Role: models.RoleUser, Content: "again"},
	}, turns)

	assert.Equal(t, []models.Turn{{Role: models.RoleUser, Content: "solo"}}, BuildTranscript("", nil, "solo"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
	assert.Equal(t, "", truncateRunes("abc", 0))
}
