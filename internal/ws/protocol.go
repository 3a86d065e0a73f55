package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"chat_server/internal/config"
	"chat_server/internal/domain"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

// RoomDirectory answers the authorization question the protocol asks
// before joining a connection to a room.
type RoomDirectory interface {
	IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
}

// MessageSender persists a message and drives the new-message fan-out.
// The one implementation is the chat service, shared with the HTTP
// surface so both paths broadcast identically.
type MessageSender interface {
	SendMessage(ctx context.Context, roomID, senderID uuid.UUID, senderName, content string) (*domain.Message, error)
}

// Protocol is the inbound event state machine. A connection reaching
// it has already authenticated during the handshake; events are
// validated shape first, authorization second, business rule last.
// Failures are rejected back to the originating connection only and
// never mutate shared state.
type Protocol struct {
	hub   *Hub
	rooms RoomDirectory
	chat  MessageSender
	cfg   config.ChatConfig
	log   logger.Logger
}

func NewProtocol(hub *Hub, rooms RoomDirectory, chat MessageSender, cfg config.ChatConfig, log logger.Logger) *Protocol {
	return &Protocol{
		hub:   hub,
		rooms: rooms,
		chat:  chat,
		cfg:   cfg,
		log:   log,
	}
}

// HandleEvent processes one inbound event to completion. The caller
// (the connection's read pump) does not read the next event until this
// returns, so events from one connection never interleave.
func (p *Protocol) HandleEvent(ctx context.Context, c Connection, env InboundEnvelope) {
	switch env.Event {
	case EventJoinRoom:
		p.handleJoinRoom(ctx, c, env.Data)
	case EventLeaveRoom:
		p.handleLeaveRoom(ctx, c, env.Data)
	case EventSendMessage:
		p.handleSendMessage(ctx, c, env.Data)
	case EventTyping:
		p.handleTyping(ctx, c, env.Data)
	default:
		p.reject(c, env.Event, "unknown event")
	}
}

func (p *Protocol) handleJoinRoom(ctx context.Context, c Connection, data json.RawMessage) {
	var payload JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == uuid.Nil {
		p.reject(c, EventJoinRoom, "malformed payload")
		return
	}

	ok, err := p.rooms.IsParticipant(ctx, payload.RoomID, c.UserID())
	if err != nil {
		p.rejectError(c, EventJoinRoom, err)
		return
	}
	if !ok {
		p.reject(c, EventJoinRoom, "not a room participant")
		return
	}

	p.hub.Rooms().Join(c.ID(), payload.RoomID)

	p.hub.Broadcast().ToRoomExceptUser(payload.RoomID, c.UserID(), EventUserJoined, UserJoinedPayload{
		UserID:   c.UserID(),
		Username: c.Username(),
		RoomID:   payload.RoomID,
	})
}

func (p *Protocol) handleLeaveRoom(_ context.Context, c Connection, data json.RawMessage) {
	var payload LeaveRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == uuid.Nil {
		p.reject(c, EventLeaveRoom, "malformed payload")
		return
	}

	if !p.hub.Rooms().InRoom(c.ID(), payload.RoomID) {
		p.reject(c, EventLeaveRoom, "not joined to room")
		return
	}

	// Leave before broadcasting, so the departing connection is not a
	// target of its own user-left event.
	p.hub.Rooms().Leave(c.ID(), payload.RoomID)

	p.hub.Broadcast().ToRoom(payload.RoomID, EventUserLeft, UserLeftPayload{
		UserID:   c.UserID(),
		Username: c.Username(),
		RoomID:   payload.RoomID,
	})
}

func (p *Protocol) handleSendMessage(ctx context.Context, c Connection, data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == uuid.Nil {
		p.reject(c, EventSendMessage, "malformed payload")
		return
	}

	content := strings.TrimSpace(payload.Content)
	if content == "" {
		p.reject(c, EventSendMessage, apperrors.ErrEmptyMessage.Error())
		return
	}
	if utf8.RuneCountInString(content) > p.cfg.MaxMessageLength {
		p.reject(c, EventSendMessage, apperrors.ErrMessageTooLong.Error())
		return
	}

	if !p.hub.Rooms().InRoom(c.ID(), payload.RoomID) {
		p.reject(c, EventSendMessage, "not joined to room")
		return
	}

	// The chat service re-validates participation against persistence,
	// persists the message, and fans out new-message to the room
	// (including the sender, for multi-device consistency).
	if _, err := p.chat.SendMessage(ctx, payload.RoomID, c.UserID(), c.Username(), content); err != nil {
		p.rejectError(c, EventSendMessage, err)
	}
}

func (p *Protocol) handleTyping(_ context.Context, c Connection, data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == uuid.Nil {
		p.reject(c, EventTyping, "malformed payload")
		return
	}

	if !p.hub.Rooms().InRoom(c.ID(), payload.RoomID) {
		p.reject(c, EventTyping, "not a room participant")
		return
	}

	p.hub.Presence().SetTyping(payload.RoomID, c.UserID(), c.Username(), payload.IsTyping)
}

// reject sends a localized error back to the offending connection.
func (p *Protocol) reject(c Connection, event, message string) {
	c.Deliver(Envelope{Event: EventError, Data: ErrorPayload{Event: event, Message: message}})
}

// rejectError maps known domain errors to a rejection and everything
// else (persistence failures included) to a generic one. The exact
// cause stays in the server log.
func (p *Protocol) rejectError(c Connection, event string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrRoomNotFound):
		p.reject(c, event, "room not found")
	case errors.Is(err, apperrors.ErrNotParticipant):
		p.reject(c, event, "not a room participant")
	case errors.Is(err, apperrors.ErrEmptyMessage), errors.Is(err, apperrors.ErrMessageTooLong):
		p.reject(c, event, err.Error())
	default:
		p.log.Error("event handling failed", "event", event, "connection_id", c.ID(), "error", err)
		p.reject(c, event, "internal error")
	}
}
