package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"game-slot-scheduler/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrTelegramLinked means the Telegram account belongs to another user.
	ErrTelegramLinked = errors.New("telegram account already linked")
)

// UserRepository handles user lookups. Users are owned by the HR suite;
// this service only reads them and links chat accounts.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `id, name, email, telegram_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.TelegramID,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a user.
func (r *UserRepository) Create(ctx context.Context, name, email string, telegramID *int64) (*model.User, error) {
	const query = `
		INSERT INTO users (name, email, telegram_id, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, name, email, telegramID))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTelegramLinked
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByTelegramID retrieves the user linked to a Telegram account.
// Returns ErrUserNotFound if no user is linked.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return user, nil
}

// LinkTelegram attaches a Telegram account to a user.
func (r *UserRepository) LinkTelegram(ctx context.Context, id, telegramID int64) error {
	const query = `UPDATE users SET telegram_id = $2 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, telegramID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTelegramLinked
		}
		return fmt.Errorf("failed to link telegram account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ExistingIDs returns the subset of ids that resolve to real users.
func (r *UserRepository) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	const query = `SELECT id FROM users WHERE id = ANY($1) ORDER BY id`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	found, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return found, nil
}

// TelegramIDs maps user IDs to linked Telegram accounts. Unlinked users
// are absent from the result.
func (r *UserRepository) TelegramIDs(ctx context.Context, ids []int64) (map[int64]int64, error) {
	const query = `SELECT id, telegram_id FROM users WHERE id = ANY($1) AND telegram_id IS NOT NULL`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up telegram ids: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, tg int64
		if err := rows.Scan(&id, &tg); err != nil {
			return nil, fmt.Errorf("failed to scan telegram id: %w", err)
		}
		out[id] = tg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating telegram ids: %w", err)
	}
	return out, nil
}
