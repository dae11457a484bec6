package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the static reference data: universes and their characters.
type Seed struct {
	Universes []SeedUniverse `yaml:"universes"`
}

type SeedUniverse struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Characters []SeedCharacter `yaml:"characters"`
}

type SeedCharacter struct {
	ID            string         `yaml:"id"`
	Name          string         `yaml:"name"`
	PersonaConfig map[string]any `yaml:"persona_config"`
}

// LoadSeedFile parses a YAML seed file.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for _, u := range seed.Universes {
		if u.ID == "" || u.Name == "" {
			return nil, fmt.Errorf("seed universe requires id and name")
		}
		for _, c := range u.Characters {
			if c.ID == "" || c.Name == "" {
				return nil, fmt.Errorf("seed character in universe %s requires id and name", u.ID)
			}
		}
	}
	return &seed, nil
}

// Seed upserts every universe and character in one transaction.
func (s *SQLStore) Seed(ctx context.Context, seed *Seed) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	universeQuery := s.rebind(s.upsert(`INSERT INTO universes (id, name) VALUES (?, ?)`, []string{"id"}, "name"))
	characterQuery := s.rebind(s.upsert(
		`INSERT INTO characters (id, name, universe_id, persona_config) VALUES (?, ?, ?, ?)`,
		[]string{"id"}, "name", "universe_id", "persona_config",
	))

	for _, u := range seed.Universes {
		if _, err = tx.ExecContext(ctx, universeQuery, u.ID, u.Name); err != nil {
			return fmt.Errorf("seed universe %s: %w", u.ID, err)
		}
		for _, c := range u.Characters {
			var config any
			if c.PersonaConfig != nil {
				raw, merr := json.Marshal(c.PersonaConfig)
				if merr != nil {
					err = fmt.Errorf("encode persona config for %s: %w", c.ID, merr)
					return err
				}
				config = string(raw)
			}
			if _, err = tx.ExecContext(ctx, characterQuery, c.ID, c.Name, u.ID, config); err != nil {
				return fmt.Errorf("seed character %s: %w", c.ID, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
