package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat_server/internal/domain"
	"chat_server/internal/repository"
	"chat_server/internal/ws"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

// RoomService owns room mutations and their fan-out. For mutations
// that touch membership (delete, remove, leave) the order is fixed:
// persist, then update the membership tracker, then broadcast. A
// client that saw room-deleted can never receive a later new-message
// for the same room from a racing request.
type RoomService interface {
	Create(ctx context.Context, authorID uuid.UUID, name string, avatarURL *string) (*domain.Room, error)
	GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Room, error)
	Update(ctx context.Context, roomID, actorID uuid.UUID, name *string, avatarURL *string) (*domain.Room, error)
	Delete(ctx context.Context, roomID, actorID uuid.UUID) error
	AddParticipant(ctx context.Context, roomID, actorID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, roomID, actorID, userID uuid.UUID) error
	Leave(ctx context.Context, roomID, userID uuid.UUID) error
	GetParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomParticipant, error)
	IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

type roomService struct {
	roomRepo repository.RoomRepository
	userRepo repository.UserRepository
	cache    repository.MessageCacheRepository
	hub      *ws.Hub
	log      logger.Logger
}

func NewRoomService(roomRepo repository.RoomRepository, userRepo repository.UserRepository, cache repository.MessageCacheRepository, hub *ws.Hub, log logger.Logger) RoomService {
	return &roomService{
		roomRepo: roomRepo,
		userRepo: userRepo,
		cache:    cache,
		hub:      hub,
		log:      log,
	}
}

func (s *roomService) Create(ctx context.Context, authorID uuid.UUID, name string, avatarURL *string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("room name is required")
	}
	if len(name) > 100 {
		return nil, errors.New("room name is too long (max 100 characters)")
	}

	room := &domain.Room{
		ID:        uuid.New(),
		Name:      name,
		AvatarURL: avatarURL,
		AuthorID:  authorID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		s.log.Error("failed to create room", "error", err)
		return nil, errors.New("failed to create room")
	}

	// The author's other devices learn about the new room immediately.
	s.hub.Broadcast().ToUser(authorID, ws.EventRoomListUpdated, ws.RoomListUpdatedPayload{
		Action: ws.RoomListActionCreated,
		Room:   room,
	})

	return room, nil
}

func (s *roomService) GetByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	return s.roomRepo.GetByID(ctx, roomID)
}

func (s *roomService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.roomRepo.List(ctx, userID, limit, offset)
}

func (s *roomService) Update(ctx context.Context, roomID, actorID uuid.UUID, name *string, avatarURL *string) (*domain.Room, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.AuthorID != actorID {
		return nil, apperrors.ErrNotRoomAuthor
	}

	if name != nil && strings.TrimSpace(*name) != "" {
		room.Name = strings.TrimSpace(*name)
	}
	if avatarURL != nil {
		room.AvatarURL = avatarURL
	}

	if err := s.roomRepo.Update(ctx, room); err != nil {
		return nil, err
	}

	s.hub.Broadcast().ToRoom(roomID, ws.EventRoomUpdated, ws.RoomUpdatedPayload{
		RoomID:      room.ID,
		RoomName:    room.Name,
		AvatarURL:   room.AvatarURL,
		UpdatedRoom: room,
		Message:     "room settings changed",
	})

	participants, err := s.roomRepo.GetParticipants(ctx, roomID)
	if err != nil {
		s.log.Warn("failed to load participants for room-list fan-out", "error", err, "room_id", roomID)
		return room, nil
	}
	for _, p := range participants {
		s.hub.Broadcast().ToUser(p.UserID, ws.EventRoomListUpdated, ws.RoomListUpdatedPayload{
			Action: ws.RoomListActionUpdated,
			Room:   room,
		})
	}

	return room, nil
}

func (s *roomService) Delete(ctx context.Context, roomID, actorID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.AuthorID != actorID {
		return apperrors.ErrNotRoomAuthor
	}

	// Resolve the audience before the rows are gone.
	participants, err := s.roomRepo.GetParticipants(ctx, roomID)
	if err != nil {
		return err
	}

	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		return err
	}

	// Tracker purge before the broadcast: once room-deleted is on the
	// wire no connection is a fan-out target for this room anymore.
	s.hub.RemoveRoom(roomID)

	if err := s.cache.Invalidate(ctx, roomID); err != nil {
		s.log.Warn("failed to invalidate message cache", "error", err, "room_id", roomID)
	}

	payload := ws.RoomDeletedPayload{
		RoomID:   roomID,
		RoomName: room.Name,
		Message:  "room was deleted by its author",
	}
	for _, p := range participants {
		s.hub.Broadcast().ToUser(p.UserID, ws.EventRoomDeleted, payload)
	}

	return nil
}

func (s *roomService) AddParticipant(ctx context.Context, roomID, actorID, userID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.AuthorID != actorID {
		return apperrors.ErrNotRoomAuthor
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	participant := &domain.RoomParticipant{
		RoomID:   roomID,
		UserID:   userID,
		Username: user.Username,
		JoinedAt: time.Now(),
	}
	if err := s.roomRepo.AddParticipant(ctx, participant); err != nil {
		return err
	}

	s.hub.Broadcast().ToUser(userID, ws.EventRoomListUpdated, ws.RoomListUpdatedPayload{
		Action: ws.RoomListActionAdded,
		Room:   room,
	})
	s.hub.Broadcast().ToRoom(roomID, ws.EventRoomUpdated, ws.RoomUpdatedPayload{
		RoomID:      room.ID,
		RoomName:    room.Name,
		AvatarURL:   room.AvatarURL,
		UpdatedRoom: room,
		Message:     user.Username + " was added to the room",
	})

	return nil
}

func (s *roomService) RemoveParticipant(ctx context.Context, roomID, actorID, userID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.AuthorID != actorID {
		return apperrors.ErrNotRoomAuthor
	}
	if userID == room.AuthorID {
		return errors.New("the room author cannot be removed")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.roomRepo.RemoveParticipant(ctx, roomID, userID); err != nil {
		return err
	}

	// Detach the removed user's live connections before telling anyone.
	s.hub.DetachUserFromRoom(roomID, userID)

	s.hub.Broadcast().ToUser(userID, ws.EventUserRemovedFromRoom, ws.UserRemovedFromRoomPayload{
		RoomID:   roomID,
		RoomName: room.Name,
		Message:  "you were removed from the room",
	})
	s.hub.Broadcast().ToRoom(roomID, ws.EventMemberRemoved, ws.MemberRemovedPayload{
		RoomID:          roomID,
		RoomName:        room.Name,
		RemovedUserID:   userID,
		RemovedUsername: user.Username,
		Message:         user.Username + " was removed from the room",
	})

	return nil
}

func (s *roomService) Leave(ctx context.Context, roomID, userID uuid.UUID) error {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if userID == room.AuthorID {
		return errors.New("the room author cannot leave; delete the room instead")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.roomRepo.RemoveParticipant(ctx, roomID, userID); err != nil {
		return err
	}

	s.hub.DetachUserFromRoom(roomID, userID)

	s.hub.Broadcast().ToRoom(roomID, ws.EventUserLeft, ws.UserLeftPayload{
		UserID:   userID,
		Username: user.Username,
		RoomID:   roomID,
	})
	s.hub.Broadcast().ToUser(userID, ws.EventRoomListUpdated, ws.RoomListUpdatedPayload{
		Action: ws.RoomListActionRemoved,
		Room:   room,
	})

	return nil
}

func (s *roomService) GetParticipants(ctx context.Context, roomID uuid.UUID) ([]*domain.RoomParticipant, error) {
	return s.roomRepo.GetParticipants(ctx, roomID)
}

func (s *roomService) IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	return s.roomRepo.IsParticipant(ctx, roomID, userID)
}
