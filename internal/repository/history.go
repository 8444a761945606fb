package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/model"
)

// HistoryRepository handles per-cycle play counters.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository instance.
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *HistoryRepository) WithTx(tx pgx.Tx) *HistoryRepository {
	return &HistoryRepository{db: tx}
}

const historyColumns = `id, user_id, game_id, cycle_start, cycle_end, slots_played, last_played_date`

// Increment adds one play for each user in the cycle, creating the
// cycle row when absent.
func (r *HistoryRepository) Increment(ctx context.Context, userIDs []int64, gameID int64, cycleStart, cycleEnd, playedAt time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO game_histories (user_id, game_id, cycle_start, cycle_end, slots_played, last_played_date)
		SELECT uid, $2, $3, $4, 1, $5 FROM UNNEST($1::BIGINT[]) AS uid
		ON CONFLICT (user_id, game_id, cycle_start, cycle_end)
		DO UPDATE SET
			slots_played = game_histories.slots_played + 1,
			last_played_date = GREATEST(game_histories.last_played_date, EXCLUDED.last_played_date)
	`

	if _, err := r.db.Exec(ctx, query, userIDs, gameID, cycleStart, cycleEnd, playedAt); err != nil {
		return fmt.Errorf("failed to increment history: %w", err)
	}
	return nil
}

// PlayCounts returns slots played in the cycle per user. Users without a
// row are absent.
func (r *HistoryRepository) PlayCounts(ctx context.Context, userIDs []int64, gameID int64, cycleStart, cycleEnd time.Time) (map[int64]int, error) {
	const query = `
		SELECT user_id, slots_played FROM game_histories
		WHERE game_id = $2 AND cycle_start = $3 AND cycle_end = $4 AND user_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, userIDs, gameID, cycleStart, cycleEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load play counts: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int, len(userIDs))
	for rows.Next() {
		var uid int64
		var n int
		if err := rows.Scan(&uid, &n); err != nil {
			return nil, fmt.Errorf("failed to scan play count: %w", err)
		}
		out[uid] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating play counts: %w", err)
	}
	return out, nil
}

// ListByUserInCycle returns the user's history rows for the cycle
// containing [cycleStart, cycleEnd).
func (r *HistoryRepository) ListByUserInCycle(ctx context.Context, userID int64, cycleStart, cycleEnd time.Time) ([]*model.GameHistory, error) {
	const query = `
		SELECT ` + historyColumns + `
		FROM game_histories
		WHERE user_id = $1 AND cycle_start = $2 AND cycle_end = $3
		ORDER BY game_id
	`

	rows, err := r.db.Query(ctx, query, userID, cycleStart, cycleEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []*model.GameHistory
	for rows.Next() {
		var h model.GameHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.GameID, &h.CycleStart, &h.CycleEnd, &h.SlotsPlayed, &h.LastPlayedDate); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return out, nil
}
