package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"chat_server/internal/config"
	"chat_server/pkg/logger"
)

type Repositories struct {
	User         UserRepository
	Room         RoomRepository
	Message      MessageRepository
	MessageCache MessageCacheRepository
	RateLimit    RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log logger.Logger) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db, log),
		Room:         NewRoomRepository(db, log),
		Message:      NewMessageRepository(db, log),
		MessageCache: NewMessageCacheRepository(rdb, cfg.Chat.HistoryCacheSize, cfg.Chat.HistoryCacheTTL, log),
		RateLimit:    NewRateLimitRepository(rdb, log),
	}
}
