package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/model"
)

// InterestRepository handles user/game opt-ins.
type InterestRepository struct {
	db DBTX
}

// NewInterestRepository creates a new InterestRepository instance.
func NewInterestRepository(db DBTX) *InterestRepository {
	return &InterestRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *InterestRepository) WithTx(tx pgx.Tx) *InterestRepository {
	return &InterestRepository{db: tx}
}

// Set upserts the interest flag for (userID, gameID).
func (r *InterestRepository) Set(ctx context.Context, userID, gameID int64, interested bool) (*model.UserGameInterest, error) {
	const query = `
		INSERT INTO user_game_interests (user_id, game_id, is_interested, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, game_id)
		DO UPDATE SET is_interested = EXCLUDED.is_interested, updated_at = NOW()
		RETURNING id, user_id, game_id, is_interested, updated_at
	`

	var i model.UserGameInterest
	err := r.db.QueryRow(ctx, query, userID, gameID, interested).Scan(
		&i.ID,
		&i.UserID,
		&i.GameID,
		&i.IsInterested,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set interest: %w", err)
	}
	return &i, nil
}

// IsInterested reports whether the user currently opts in to the game.
func (r *InterestRepository) IsInterested(ctx context.Context, userID, gameID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM user_game_interests
			WHERE user_id = $1 AND game_id = $2 AND is_interested
		)
	`

	var ok bool
	if err := r.db.QueryRow(ctx, query, userID, gameID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check interest: %w", err)
	}
	return ok, nil
}

// InterestedAmong returns the subset of userIDs interested in the game.
func (r *InterestRepository) InterestedAmong(ctx context.Context, gameID int64, userIDs []int64) ([]int64, error) {
	const query = `
		SELECT user_id FROM user_game_interests
		WHERE game_id = $1 AND user_id = ANY($2) AND is_interested
		ORDER BY user_id
	`

	rows, err := r.db.Query(ctx, query, gameID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up interests: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan interests: %w", err)
	}
	return ids, nil
}

// ListByUser returns every interest row of a user.
func (r *InterestRepository) ListByUser(ctx context.Context, userID int64) ([]*model.UserGameInterest, error) {
	const query = `
		SELECT id, user_id, game_id, is_interested, updated_at
		FROM user_game_interests
		WHERE user_id = $1
		ORDER BY game_id
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interests: %w", err)
	}
	defer rows.Close()

	var out []*model.UserGameInterest
	for rows.Next() {
		var i model.UserGameInterest
		if err := rows.Scan(&i.ID, &i.UserID, &i.GameID, &i.IsInterested, &i.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interest: %w", err)
		}
		out = append(out, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interests: %w", err)
	}
	return out, nil
}
