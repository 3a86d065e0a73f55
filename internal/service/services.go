package service

import (
	"chat_server/internal/config"
	"chat_server/internal/repository"
	"chat_server/internal/ws"
	"chat_server/pkg/logger"
)

type Services struct {
	Auth      AuthService
	User      UserService
	Room      RoomService
	Chat      ChatService
	RateLimit RateLimitService
}

func NewServices(repos *repository.Repositories, hub *ws.Hub, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:      NewAuthService(repos.User, cfg.JWT, log),
		User:      NewUserService(repos.User, log),
		Room:      NewRoomService(repos.Room, repos.User, repos.MessageCache, hub, log),
		Chat:      NewChatService(repos.Message, repos.Room, repos.MessageCache, hub, cfg.Chat, log),
		RateLimit: NewRateLimitService(repos.RateLimit, log),
	}
}
