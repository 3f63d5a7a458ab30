package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"go.uber.org/zap"
)

// UserStore реализуется repository.UserRepository
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	LinkTelegram(ctx context.Context, userID, telegramID int64) error
}

type UserService struct {
	userRepo UserStore
	logger   *zap.Logger
}

func NewUserService(userRepo UserStore, logger *zap.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		logger:   logger,
	}
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID. nil, если аккаунт не привязан.
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByTelegramID(ctx, telegramID)
}

// LinkTelegram привязывает Telegram-аккаунт к университетской учётной записи по email
func (s *UserService) LinkTelegram(ctx context.Context, telegramID int64, email string) (*model.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := s.userRepo.LinkTelegram(ctx, user.ID, telegramID); err != nil {
		return nil, fmt.Errorf("link telegram: %w", err)
	}
	user.TelegramID = &telegramID

	s.logger.Info("Telegram account linked",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
	)
	return user, nil
}
