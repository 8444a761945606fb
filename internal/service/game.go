package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/repository"
)

// GameInput carries the editable fields of a game.
type GameInput struct {
	Name                string
	OperatingStart      time.Duration
	OperatingEnd        time.Duration
	SlotDurationMinutes int
	MaxPlayersPerSlot   int
}

// Validate checks the fields of a game definition.
func (in GameInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Invalid("game name is required")
	case in.OperatingStart < 0 || in.OperatingEnd > 24*time.Hour:
		return apperr.Invalid("operating hours must lie within one day")
	case in.OperatingEnd <= in.OperatingStart:
		return apperr.Invalid("operating end must be after operating start")
	case in.SlotDurationMinutes <= 0:
		return apperr.Invalid("slot duration must be positive")
	case in.MaxPlayersPerSlot <= 0:
		return apperr.Invalid("max players per slot must be positive")
	}
	return nil
}

func (in GameInput) model() *model.Game {
	return &model.Game{
		Name:                strings.TrimSpace(in.Name),
		OperatingStart:      in.OperatingStart,
		OperatingEnd:        in.OperatingEnd,
		SlotDurationMinutes: in.SlotDurationMinutes,
		MaxPlayersPerSlot:   in.MaxPlayersPerSlot,
	}
}

// GameService manages game definitions.
type GameService struct {
	games *repository.GameRepository
}

// NewGameService creates a new GameService instance.
func NewGameService(games *repository.GameRepository) *GameService {
	return &GameService{games: games}
}

// Create registers a new game. Names are unique.
func (s *GameService) Create(ctx context.Context, in GameInput) (*model.Game, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	g, err := s.games.Create(ctx, in.model())
	if err != nil {
		return nil, translate(err, "game", 0)
	}

	log.Info().Int64("game_id", g.ID).Str("name", g.Name).Msg("Game created")
	return g, nil
}

// Update replaces a game's definition. Slots already generated keep
// their windows.
func (s *GameService) Update(ctx context.Context, id int64, in GameInput) (*model.Game, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	g := in.model()
	g.ID = id
	updated, err := s.games.Update(ctx, g)
	if err != nil {
		return nil, translate(err, "game", id)
	}

	log.Info().Int64("game_id", id).Msg("Game updated")
	return updated, nil
}

// Get returns a game by ID.
func (s *GameService) Get(ctx context.Context, id int64) (*model.Game, error) {
	g, err := s.games.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "game", id)
	}
	return g, nil
}

// GetByName looks a game up by case-insensitive name.
func (s *GameService) GetByName(ctx context.Context, name string) (*model.Game, error) {
	g, err := s.games.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, apperr.Invalid("unknown game %q", name)
		}
		return nil, apperr.Wrap(err, "failed to get game")
	}
	return g, nil
}

// List returns every game ordered by name.
func (s *GameService) List(ctx context.Context) ([]*model.Game, error) {
	games, err := s.games.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list games")
	}
	return games, nil
}
