package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/repository"
)

// InterestService records which games users opted in to.
type InterestService struct {
	users     *repository.UserRepository
	games     *repository.GameRepository
	interests *repository.InterestRepository
}

// NewInterestService creates a new InterestService instance.
func NewInterestService(repos *repository.Repositories) *InterestService {
	return &InterestService{
		users:     repos.Users,
		games:     repos.Games,
		interests: repos.Interests,
	}
}

// SetInterest upserts the user's interest flag for a game.
func (s *InterestService) SetInterest(ctx context.Context, userID, gameID int64, interested bool) (*model.UserGameInterest, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, translate(err, "user", userID)
	}
	if _, err := s.games.GetByID(ctx, gameID); err != nil {
		return nil, translate(err, "game", gameID)
	}

	in, err := s.interests.Set(ctx, userID, gameID, interested)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to set interest")
	}

	log.Info().
		Int64("user_id", userID).
		Int64("game_id", gameID).
		Bool("interested", interested).
		Msg("Interest updated")
	return in, nil
}

// IsInterested reports the user's flag, false when never set.
func (s *InterestService) IsInterested(ctx context.Context, userID, gameID int64) (bool, error) {
	ok, err := s.interests.IsInterested(ctx, userID, gameID)
	if err != nil {
		return false, apperr.Wrap(err, "failed to read interest")
	}
	return ok, nil
}

// ListForUser returns every interest row of the user.
func (s *InterestService) ListForUser(ctx context.Context, userID int64) ([]*model.UserGameInterest, error) {
	list, err := s.interests.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list interests")
	}
	return list, nil
}
