package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"helix/internal/models"
)

const maxPersonaConfigChars = 4000

const roleplayRules = "Stay strictly in character and speak in the first person. " +
	"Never say or imply that you are an AI, an assistant or a language model, even if asked."

// guidance fields read from the persona config, in prompt order. Both
// snake_case and camelCase spellings are accepted.
var guidanceFields = []struct {
	label string
	keys  []string
}{
	{"Voice", []string{"voice"}},
	{"Tone", []string{"tone"}},
	{"Explanation style", []string{"explanation_style", "explanationStyle"}},
	{"Knowledge scope", []string{"knowledge_scope", "knowledgeScope"}},
	{"Speech quirks", []string{"speech_quirks", "speechQuirks"}},
}

// BuildSystemPrompt returns the roleplay instructions for persona, or "" when
// there is neither a character name nor a persona config.
func BuildSystemPrompt(persona models.Persona, personaConfig json.RawMessage) string {
	hasConfig := len(personaConfig) > 0 && string(personaConfig) != "null"
	if persona.CharacterName == "" && !hasConfig {
		return ""
	}

	var parts []string
	if persona.CharacterName != "" {
		intro := "You are " + persona.CharacterName
		if persona.UniverseName != "" {
			intro += " from " + persona.UniverseName
		}
		parts = append(parts, intro+". Reply in-character.")
	}
	parts = append(parts, roleplayRules)

	if hasConfig {
		if guidance := formatGuidance(personaConfig); guidance != "" {
			parts = append(parts, guidance)
		}
		parts = append(parts, "Persona config: "+truncateRunes(compactJSON(personaConfig), maxPersonaConfigChars))
	}
	return strings.Join(parts, "\n\n")
}

func formatGuidance(raw json.RawMessage) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	var lines []string
	for _, field := range guidanceFields {
		for _, key := range field.keys {
			value, ok := fields[key]
			if !ok {
				continue
			}
			if text := formatValue(value); text != "" {
				lines = append(lines, fmt.Sprintf("- %s: %s", field.label, text))
			}
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Follow this guidance:\n" + strings.Join(lines, "\n")
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := formatValue(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, "; ")
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// truncateRunes keeps at most n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// BuildTranscript assembles [system?] + history + the new user turn.
func BuildTranscript(systemPrompt string, history []models.Message, text string) []models.Turn {
	turns := make([]models.Turn, 0, len(history)+2)
	if systemPrompt != "" {
		turns = append(turns, models.Turn{Role: models.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		turns = append(turns, models.TurnFromMessage(m))
	}
	return append(turns, models.Turn{Role: models.RoleUser, Content: text})
}
