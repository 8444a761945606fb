package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"game-slot-scheduler/internal/model"
)

// Game repository errors.
var (
	ErrGameNotFound      = errors.New("game not found")
	ErrDuplicateGameName = errors.New("game name already exists")
)

// GameRepository handles game data persistence.
type GameRepository struct {
	db DBTX
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(db DBTX) *GameRepository {
	return &GameRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *GameRepository) WithTx(tx pgx.Tx) *GameRepository {
	return &GameRepository{db: tx}
}

const gameColumns = `id, name, operating_start, operating_end, slot_duration_minutes, max_players_per_slot, created_at, updated_at`

func timeOfDay(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
}

func scanGame(row pgx.Row) (*model.Game, error) {
	var (
		g          model.Game
		start, end pgtype.Time
	)
	err := row.Scan(
		&g.ID,
		&g.Name,
		&start,
		&end,
		&g.SlotDurationMinutes,
		&g.MaxPlayersPerSlot,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.OperatingStart = time.Duration(start.Microseconds) * time.Microsecond
	g.OperatingEnd = time.Duration(end.Microseconds) * time.Microsecond
	return &g, nil
}

// Create inserts a game.
// Returns ErrDuplicateGameName if the name is taken.
func (r *GameRepository) Create(ctx context.Context, g *model.Game) (*model.Game, error) {
	const query = `
		INSERT INTO games (name, operating_start, operating_end, slot_duration_minutes, max_players_per_slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + gameColumns

	created, err := scanGame(r.db.QueryRow(ctx, query,
		g.Name, timeOfDay(g.OperatingStart), timeOfDay(g.OperatingEnd), g.SlotDurationMinutes, g.MaxPlayersPerSlot,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateGameName
		}
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return created, nil
}

// Update overwrites a game's settings. Already generated slots keep
// their windows.
func (r *GameRepository) Update(ctx context.Context, g *model.Game) (*model.Game, error) {
	const query = `
		UPDATE games
		SET name = $2, operating_start = $3, operating_end = $4,
			slot_duration_minutes = $5, max_players_per_slot = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + gameColumns

	updated, err := scanGame(r.db.QueryRow(ctx, query,
		g.ID, g.Name, timeOfDay(g.OperatingStart), timeOfDay(g.OperatingEnd), g.SlotDurationMinutes, g.MaxPlayersPerSlot,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		if isUniqueViolation(err) {
			return nil, ErrDuplicateGameName
		}
		return nil, fmt.Errorf("failed to update game: %w", err)
	}
	return updated, nil
}

// GetByID retrieves a game by ID.
func (r *GameRepository) GetByID(ctx context.Context, id int64) (*model.Game, error) {
	return r.get(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
}

// GetForUpdate retrieves a game and row-locks it until the transaction
// ends. Used to serialize slot generation per game.
func (r *GameRepository) GetForUpdate(ctx context.Context, id int64) (*model.Game, error) {
	return r.get(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, id)
}

// GetByName retrieves a game by its unique name, case-insensitively.
func (r *GameRepository) GetByName(ctx context.Context, name string) (*model.Game, error) {
	return r.get(ctx, `SELECT `+gameColumns+` FROM games WHERE LOWER(name) = LOWER($1)`, name)
}

func (r *GameRepository) get(ctx context.Context, query string, arg any) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return g, nil
}

// List returns all games ordered by name.
func (r *GameRepository) List(ctx context.Context) ([]*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}
	return games, nil
}
