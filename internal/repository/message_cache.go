package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chat_server/internal/domain"
	"chat_server/pkg/logger"
)

const messagesCacheKeyPrefix = "chat:room:%s:messages"

// MessageCacheRepository keeps the most recent messages of each room in
// a redis sorted set scored by send time. It is a read-through cache in
// front of postgres; a miss or a redis failure falls back to the
// database, never to an error for the user.
type MessageCacheRepository interface {
	Push(ctx context.Context, roomID uuid.UUID, message *domain.Message) error
	Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error)
	Invalidate(ctx context.Context, roomID uuid.UUID) error
}

type messageCacheRepository struct {
	rdb     *redis.Client
	maxSize int
	ttl     time.Duration
	log     logger.Logger
}

func NewMessageCacheRepository(rdb *redis.Client, maxSize int, ttl time.Duration, log logger.Logger) MessageCacheRepository {
	return &messageCacheRepository{
		rdb:     rdb,
		maxSize: maxSize,
		ttl:     ttl,
		log:     log,
	}
}

func (r *messageCacheRepository) key(roomID uuid.UUID) string {
	return fmt.Sprintf(messagesCacheKeyPrefix, roomID.String())
}

func (r *messageCacheRepository) Push(ctx context.Context, roomID uuid.UUID, message *domain.Message) error {
	key := r.key(roomID)

	messageJSON, err := json.Marshal(message)
	if err != nil {
		r.log.Error("failed to marshal message", "error", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	score := float64(message.CreatedAt.UnixMilli())
	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: messageJSON})
	// Keep only the newest maxSize entries.
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-r.maxSize-1))
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("failed to push message to cache", "error", err, "room_id", roomID)
		return err
	}

	return nil
}

func (r *messageCacheRepository) Recent(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.Message, error) {
	key := r.key(roomID)

	messagesJSON, err := r.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.log.Warn("failed to read message cache", "error", err, "room_id", roomID)
		return nil, err
	}

	messages := make([]*domain.Message, 0, len(messagesJSON))
	for _, msgJSON := range messagesJSON {
		var message domain.Message
		if err := json.Unmarshal([]byte(msgJSON), &message); err != nil {
			r.log.Warn("failed to unmarshal cached message", "error", err)
			continue
		}
		messages = append(messages, &message)
	}

	return messages, nil
}

func (r *messageCacheRepository) Invalidate(ctx context.Context, roomID uuid.UUID) error {
	if err := r.rdb.Del(ctx, r.key(roomID)).Err(); err != nil {
		r.log.Warn("failed to invalidate message cache", "error", err, "room_id", roomID)
		return err
	}
	return nil
}
