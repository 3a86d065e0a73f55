package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"chat_server/internal/domain"
	"chat_server/internal/repository"
	"chat_server/pkg/logger"
)

type UserService interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, username *string, avatarURL *string) (*domain.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log logger.Logger) UserService {
	return &userService{userRepo: userRepo, log: log}
}

func (s *userService) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, username *string, avatarURL *string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if username != nil {
		name := strings.TrimSpace(*username)
		if name == "" {
			return nil, errors.New("username cannot be empty")
		}
		if len(name) > 50 {
			return nil, errors.New("username is too long (max 50 characters)")
		}
		user.Username = name
	}
	if avatarURL != nil {
		user.AvatarURL = avatarURL
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Error("failed to update user", "error", err, "user_id", userID)
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}
