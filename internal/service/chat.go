package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chat_server/internal/config"
	"chat_server/internal/domain"
	"chat_server/internal/repository"
	"chat_server/internal/ws"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

// ChatService is the single mutation path for messages. Every call
// that changes message state fans the change out to the room, whether
// the caller was the websocket protocol or an HTTP handler: no message
// mutation happens without its broadcast.
type ChatService interface {
	SendMessage(ctx context.Context, roomID, senderID uuid.UUID, senderName, content string) (*domain.Message, error)
	GetMessages(ctx context.Context, roomID, userID uuid.UUID, limit, offset int) ([]*domain.Message, error)
	EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error
}

type chatService struct {
	messageRepo repository.MessageRepository
	roomRepo    repository.RoomRepository
	cache       repository.MessageCacheRepository
	hub         *ws.Hub
	cfg         config.ChatConfig
	log         logger.Logger
}

func NewChatService(messageRepo repository.MessageRepository, roomRepo repository.RoomRepository, cache repository.MessageCacheRepository, hub *ws.Hub, cfg config.ChatConfig, log logger.Logger) ChatService {
	return &chatService{
		messageRepo: messageRepo,
		roomRepo:    roomRepo,
		cache:       cache,
		hub:         hub,
		cfg:         cfg,
		log:         log,
	}
}

func (s *chatService) SendMessage(ctx context.Context, roomID, senderID uuid.UUID, senderName, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLength {
		return nil, apperrors.ErrMessageTooLong
	}

	ok, err := s.roomRepo.IsParticipant(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotParticipant
	}

	message := &domain.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		AuthorID:   senderID,
		AuthorName: senderName,
		Content:    content,
		CreatedAt:  time.Now(),
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	if err := s.roomRepo.SetLastMessage(ctx, roomID, message.ID); err != nil {
		s.log.Warn("failed to update last message pointer", "error", err, "room_id", roomID)
	}
	if err := s.cache.Push(ctx, roomID, message); err != nil {
		s.log.Warn("failed to cache message", "error", err, "room_id", roomID)
	}

	// Includes the sender's own connections, for multi-device
	// consistency; typing is the one event that excludes self.
	s.hub.Broadcast().ToRoom(roomID, ws.EventNewMessage, ws.NewMessagePayload{
		Message: message,
		RoomID:  roomID,
	})

	return message, nil
}

func (s *chatService) GetMessages(ctx context.Context, roomID, userID uuid.UUID, limit, offset int) ([]*domain.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ok, err := s.roomRepo.IsParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotParticipant
	}

	// The cache covers the common "latest page" read; anything older
	// comes from postgres.
	if offset == 0 {
		if cached, err := s.cache.Recent(ctx, roomID, limit); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	return s.messageRepo.ListByRoom(ctx, roomID, limit, offset)
}

func (s *chatService) EditMessage(ctx context.Context, messageID, userID uuid.UUID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.cfg.MaxMessageLength {
		return nil, apperrors.ErrMessageTooLong
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.AuthorID != userID {
		return nil, apperrors.ErrNotMessageAuthor
	}

	message.Content = content
	if err := s.messageRepo.Update(ctx, message); err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, message.RoomID); err != nil {
		s.log.Warn("failed to invalidate message cache", "error", err, "room_id", message.RoomID)
	}

	s.hub.Broadcast().ToRoom(message.RoomID, ws.EventMessageUpdated, ws.MessageUpdatedPayload{
		MessageID: message.ID,
		Content:   message.Content,
		RoomID:    message.RoomID,
	})

	return message, nil
}

func (s *chatService) DeleteMessage(ctx context.Context, messageID, userID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.AuthorID != userID {
		return apperrors.ErrNotMessageAuthor
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx, message.RoomID); err != nil {
		s.log.Warn("failed to invalidate message cache", "error", err, "room_id", message.RoomID)
	}

	s.hub.Broadcast().ToRoom(message.RoomID, ws.EventMessageDeleted, ws.MessageDeletedPayload{
		MessageID: message.ID,
		RoomID:    message.RoomID,
	})

	return nil
}
