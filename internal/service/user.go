package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"game-slot-scheduler/internal/model"
	"game-slot-scheduler/internal/pkg/apperr"
	"game-slot-scheduler/internal/repository"
)

// UserService registers employees and links their chat accounts.
type UserService struct {
	users *repository.UserRepository
}

// NewUserService creates a new UserService instance.
func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// Register creates a user. telegramID may be nil.
func (s *UserService) Register(ctx context.Context, name, email string, telegramID *int64) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("user name is required")
	}

	u, err := s.users.Create(ctx, name, strings.TrimSpace(email), telegramID)
	if err != nil {
		return nil, translate(err, "user", 0)
	}
	log.Info().Int64("user_id", u.ID).Msg("User registered")
	return u, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "user", id)
	}
	return u, nil
}

// ByTelegramID resolves the user linked to a Telegram account.
func (s *UserService) ByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	u, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, translate(err, "telegram account", telegramID)
	}
	return u, nil
}

// LinkTelegram attaches a Telegram account to a user.
func (s *UserService) LinkTelegram(ctx context.Context, userID, telegramID int64) error {
	if telegramID <= 0 {
		return apperr.Invalid("invalid telegram id %d", telegramID)
	}
	if err := s.users.LinkTelegram(ctx, userID, telegramID); err != nil {
		return translate(err, "user", userID)
	}
	log.Info().Int64("user_id", userID).Int64("telegram_id", telegramID).Msg("Telegram account linked")
	return nil
}
