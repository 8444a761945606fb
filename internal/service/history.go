package service

import (
	"context"
	"time"

	"game-slot-scheduler/internal/game/cycle"
	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/repository"
)

// HistoryService accounts plays per user, game and cycle.
type HistoryService struct {
	histories *repository.HistoryRepository
	cycles    cycle.Calculator
}

// NewHistoryService creates a new HistoryService instance.
func NewHistoryService(histories *repository.HistoryRepository, cycles cycle.Calculator) *HistoryService {
	return &HistoryService{histories: histories, cycles: cycles}
}

// Cycle returns the cycle containing t.
func (s *HistoryService) Cycle(t time.Time) (time.Time, time.Time) {
	return s.cycles.Bounds(t)
}

// RecordPlay counts one play for every user in the cycle of playedAt.
// repo is bound to the caller's transaction.
func (s *HistoryService) RecordPlay(ctx context.Context, repo *repository.HistoryRepository, userIDs []int64, gameID int64, playedAt time.Time) error {
	start, end := s.cycles.Bounds(playedAt)
	return repo.Increment(ctx, userIDs, gameID, start, end, playedAt)
}

// PlaysThisCycle returns play counts of the cycle containing at. repo may
// be nil to read outside a transaction.
func (s *HistoryService) PlaysThisCycle(ctx context.Context, repo *repository.HistoryRepository, gameID int64, userIDs []int64, at time.Time) (map[int64]int, error) {
	if repo == nil {
		repo = s.histories
	}
	if len(userIDs) == 0 {
		return map[int64]int{}, nil
	}
	start, end := s.cycles.Bounds(at)
	return repo.PlayCounts(ctx, userIDs, gameID, start, end)
}

// ListForUser returns the user's history rows for the cycle containing at.
func (s *HistoryService) ListForUser(ctx context.Context, userID int64, at time.Time) ([]*model.GameHistory, error) {
	start, end := s.cycles.Bounds(at)
	list, err := s.histories.ListByUserInCycle(ctx, userID, start, end)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list history")
	}
	return list, nil
}
