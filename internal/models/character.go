package models

import "encoding/json"

type Universe struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Character belongs to exactly one universe. PersonaConfig is opaque JSON.
type Character struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	UniverseID    string          `json:"universe_id"`
	PersonaConfig json.RawMessage `json:"persona_config,omitempty"`
}

// HasPersonaConfig reports whether a non-null configuration is attached.
func (c *Character) HasPersonaConfig() bool {
	if c == nil {
		return false
	}
	raw := string(c.PersonaConfig)
	return raw != "" && raw != "null"
}

// Persona is the character identity injected into the system prompt.
type Persona struct {
	CharacterID   string `json:"characterId,omitempty"`
	CharacterName string `json:"characterName,omitempty"`
	UniverseName  string `json:"universeName,omitempty"`
}
