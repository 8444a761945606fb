// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so every repository can
// run either standalone or inside a caller's transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repositories bundles every repository bound to the same DBTX.
type Repositories struct {
	Users     *UserRepository
	Games     *GameRepository
	Interests *InterestRepository
	Slots     *SlotRepository
	Requests  *RequestRepository
	Bookings  *BookingRepository
	Histories *HistoryRepository
}

// New binds all repositories to db.
func New(db DBTX) *Repositories {
	return &Repositories{
		Users:     NewUserRepository(db),
		Games:     NewGameRepository(db),
		Interests: NewInterestRepository(db),
		Slots:     NewSlotRepository(db),
		Requests:  NewRequestRepository(db),
		Bookings:  NewBookingRepository(db),
		Histories: NewHistoryRepository(db),
	}
}

// WithTx returns a copy of the bundle bound to tx.
func (r *Repositories) WithTx(tx pgx.Tx) *Repositories {
	return New(tx)
}

// isUniqueViolation reports a unique-constraint failure.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// collectIDs scans a single BIGINT column.
func collectIDs(rows pgx.Rows) ([]int64, error) {
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
