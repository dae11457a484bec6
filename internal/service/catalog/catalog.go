package catalog

import (
	"context"
	"fmt"

	"helix/internal/models"
)

// Store lists the static reference data.
type Store interface {
	ListUniverses(ctx context.Context) ([]models.Universe, error)
	GetUniverse(ctx context.Context, id string) (*models.Universe, error)
	ListCharacters(ctx context.Context, universeID string) ([]models.Character, error)
}

// Service backs the universe and character pickers.
type Service struct {
	store Store
}

func NewService(st Store) *Service {
	return &Service{store: st}
}

func (s *Service) Universes(ctx context.Context) ([]models.Universe, error) {
	universes, err := s.store.ListUniverses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list universes: %w", err)
	}
	return universes, nil
}

// Characters lists a universe's characters; an unknown universe is a not-found error.
func (s *Service) Characters(ctx context.Context, universeID string) ([]models.Character, error) {
	if _, err := s.store.GetUniverse(ctx, universeID); err != nil {
		return nil, fmt.Errorf("get universe %s: %w", universeID, err)
	}
	characters, err := s.store.ListCharacters(ctx, universeID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	return characters, nil
}
