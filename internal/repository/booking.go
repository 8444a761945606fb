package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/model"
)

// Booking repository errors.
var (
	ErrBookingNotFound = errors.New("booking not found")
	// ErrSeatConflict means a participant is already seated on the slot.
	ErrSeatConflict = errors.New("participant already seated on slot")
)

// BookingRepository handles bookings and their seated participants.
type BookingRepository struct {
	db DBTX
}

// NewBookingRepository creates a new BookingRepository instance.
func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *BookingRepository) WithTx(tx pgx.Tx) *BookingRepository {
	return &BookingRepository{db: tx}
}

const bookingColumns = `b.id, b.slot_id, b.game_id, b.request_id, b.created_by, b.status, b.created_at, b.updated_at`

func scanBooking(row pgx.Row) (*model.GameBooking, error) {
	var b model.GameBooking
	err := row.Scan(
		&b.ID,
		&b.SlotID,
		&b.GameID,
		&b.RequestID,
		&b.CreatedBy,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a Booked booking for an assigned request together with
// its seated participants.
func (r *BookingRepository) Create(ctx context.Context, slotID, gameID, requestID, createdBy int64, participants []int64) (*model.GameBooking, error) {
	const insertBooking = `
		INSERT INTO game_bookings AS b (slot_id, game_id, request_id, created_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + bookingColumns
	const insertParticipant = `
		INSERT INTO game_booking_participants (booking_id, slot_id, user_id, active)
		VALUES ($1, $2, $3, TRUE)
	`

	b, err := scanBooking(r.db.QueryRow(ctx, insertBooking, slotID, gameID, requestID, createdBy, model.BookingBooked))
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	batch := &pgx.Batch{}
	for _, uid := range participants {
		batch.Queue(insertParticipant, b.ID, slotID, uid)
	}
	br := r.db.SendBatch(ctx, batch)
	defer br.Close()
	for range participants {
		if _, err := br.Exec(); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrSeatConflict
			}
			return nil, fmt.Errorf("failed to add booking participant: %w", err)
		}
	}

	b.Participants = append([]int64(nil), participants...)
	return b, nil
}

// GetByID retrieves a booking with its participants.
func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*model.GameBooking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM game_bookings b WHERE b.id = $1`
	return r.getOne(ctx, query, id)
}

// GetBookedByRequest retrieves the live booking materialized from a
// request.
func (r *BookingRepository) GetBookedByRequest(ctx context.Context, requestID int64) (*model.GameBooking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM game_bookings b WHERE b.request_id = $1 AND b.status = 'Booked'`
	return r.getOne(ctx, query, requestID)
}

func (r *BookingRepository) getOne(ctx context.Context, query string, arg int64) (*model.GameBooking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if err := r.attachParticipants(ctx, []*model.GameBooking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// SeatedUserIDs returns every user holding a seat on the slot through a
// non-cancelled booking.
func (r *BookingRepository) SeatedUserIDs(ctx context.Context, slotID int64) ([]int64, error) {
	const query = `
		SELECT user_id FROM game_booking_participants
		WHERE slot_id = $1 AND active
		ORDER BY user_id
	`

	rows, err := r.db.Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list seated users: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan seated users: %w", err)
	}
	return ids, nil
}

// ListBookedBySlot returns the slot's live bookings.
func (r *BookingRepository) ListBookedBySlot(ctx context.Context, slotID int64) ([]*model.GameBooking, error) {
	const query = `
		SELECT ` + bookingColumns + `
		FROM game_bookings b
		WHERE b.slot_id = $1 AND b.status = 'Booked'
		ORDER BY b.id
	`

	rows, err := r.db.Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list slot bookings: %w", err)
	}
	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Cancel marks a booking Cancelled and frees its seats.
func (r *BookingRepository) Cancel(ctx context.Context, id int64) error {
	const update = `UPDATE game_bookings SET status = $2, updated_at = NOW() WHERE id = $1`
	const release = `UPDATE game_booking_participants SET active = FALSE WHERE booking_id = $1 AND active`

	tag, err := r.db.Exec(ctx, update, id, model.BookingCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	if _, err := r.db.Exec(ctx, release, id); err != nil {
		return fmt.Errorf("failed to release booking participants: %w", err)
	}
	return nil
}

// CompleteElapsed marks every live booking whose slot ended at or before
// now as Completed and returns how many changed.
func (r *BookingRepository) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE game_bookings b
		SET status = 'Completed', updated_at = NOW()
		FROM game_slots s
		WHERE s.id = b.slot_id AND b.status = 'Booked' AND s.end_time <= $1
	`

	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to complete bookings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns bookings seating the user whose slot starts in
// [from, to), newest slot first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*model.GameBooking, error) {
	const query = `
		SELECT ` + bookingColumns + `
		FROM game_bookings b
		JOIN game_slots s ON s.id = b.slot_id
		WHERE s.start_time >= $2 AND s.start_time < $3
		  AND EXISTS (
			SELECT 1 FROM game_booking_participants p
			WHERE p.booking_id = b.id AND p.user_id = $1
		  )
		ORDER BY s.start_time DESC, b.id
	`

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	bookings, err := collectBookings(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachParticipants(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func collectBookings(rows pgx.Rows) ([]*model.GameBooking, error) {
	defer rows.Close()

	var bookings []*model.GameBooking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}
	return bookings, nil
}

func (r *BookingRepository) attachParticipants(ctx context.Context, bookings []*model.GameBooking) error {
	if len(bookings) == 0 {
		return nil
	}

	const query = `
		SELECT booking_id, user_id
		FROM game_booking_participants
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, user_id
	`

	ids := make([]int64, len(bookings))
	byID := make(map[int64]*model.GameBooking, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		byID[b.ID] = b
		b.Participants = nil
	}

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("failed to load booking participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID, userID int64
		if err := rows.Scan(&bookingID, &userID); err != nil {
			return fmt.Errorf("failed to scan booking participant: %w", err)
		}
		if b, ok := byID[bookingID]; ok {
			b.Participants = append(b.Participants, userID)
		}
	}
	return rows.Err()
}
