package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/game/slotgen"
	"game-slot-scheduler/internal/model"
)

// Common errors for slot operations.
var (
	ErrSlotNotFound = errors.New("slot not found")
)

// SlotRepository handles game slot persistence.
type SlotRepository struct {
	db DBTX
}

// NewSlotRepository creates a new SlotRepository instance.
func NewSlotRepository(db DBTX) *SlotRepository {
	return &SlotRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *SlotRepository) WithTx(tx pgx.Tx) *SlotRepository {
	return &SlotRepository{db: tx}
}

const slotColumns = `id, game_id, start_time, end_time, status, created_at, updated_at`

func scanSlot(row pgx.Row) (*model.GameSlot, error) {
	var s model.GameSlot
	err := row.Scan(
		&s.ID,
		&s.GameID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]*model.GameSlot, error) {
	defer rows.Close()

	var slots []*model.GameSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slots: %w", err)
	}
	return slots, nil
}

// CreateBatch inserts Open slots for the given windows in one round trip.
// Windows whose start already exists for the game are skipped; the
// number of inserted rows is returned.
func (r *SlotRepository) CreateBatch(ctx context.Context, gameID int64, windows []slotgen.Window) (int, error) {
	if len(windows) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO game_slots (game_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (game_id, start_time) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, w := range windows {
		batch.Queue(query, gameID, w.Start, w.End, model.SlotOpen)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range windows {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to insert slot: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetByID retrieves a slot by ID.
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.GameSlot, error) {
	return r.get(ctx, `SELECT `+slotColumns+` FROM game_slots WHERE id = $1`, id)
}

// GetForUpdate retrieves a slot and row-locks it until the transaction
// ends. Every allocation pass starts here.
func (r *SlotRepository) GetForUpdate(ctx context.Context, id int64) (*model.GameSlot, error) {
	return r.get(ctx, `SELECT `+slotColumns+` FROM game_slots WHERE id = $1 FOR UPDATE`, id)
}

func (r *SlotRepository) get(ctx context.Context, query string, id int64) (*model.GameSlot, error) {
	s, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return s, nil
}

// ListOverlapping returns the game's slots intersecting [from, to).
func (r *SlotRepository) ListOverlapping(ctx context.Context, gameID int64, from, to time.Time) ([]*model.GameSlot, error) {
	const query = `
		SELECT ` + slotColumns + `
		FROM game_slots
		WHERE game_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, gameID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return collectSlots(rows)
}

// ListStartingBetween returns the game's slots starting in [from, to).
func (r *SlotRepository) ListStartingBetween(ctx context.Context, gameID int64, from, to time.Time) ([]*model.GameSlot, error) {
	const query = `
		SELECT ` + slotColumns + `
		FROM game_slots
		WHERE game_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`

	rows, err := r.db.Query(ctx, query, gameID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	return collectSlots(rows)
}

// UpdateStatus sets a slot's status.
func (r *SlotRepository) UpdateStatus(ctx context.Context, id int64, status model.SlotStatus) error {
	const query = `UPDATE game_slots SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update slot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// SeatCounts returns the number of actively booked seats per slot.
// Slots without bookings are absent.
func (r *SlotRepository) SeatCounts(ctx context.Context, slotIDs []int64) (map[int64]int, error) {
	const query = `
		SELECT slot_id, COUNT(*)
		FROM game_booking_participants
		WHERE slot_id = ANY($1) AND active
		GROUP BY slot_id
	`

	rows, err := r.db.Query(ctx, query, slotIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to count seats: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int, len(slotIDs))
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan seat count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating seat counts: %w", err)
	}
	return out, nil
}
