package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"chat_server/internal/domain"
)

// Event names exchanged over the socket. The set is closed: payloads
// are the typed structs below, never free-form maps.
const (
	// client -> server
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventTyping      = "typing"

	// server -> client
	EventNewMessage          = "new-message"
	EventMessageUpdated      = "message-updated"
	EventMessageDeleted      = "message-deleted"
	EventUserTyping          = "user-typing"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventUserOfflineInRoom   = "user-offline-in-room"
	EventRoomDeleted         = "room-deleted"
	EventRoomUpdated         = "room-updated"
	EventRoomListUpdated     = "room-list-updated"
	EventUserRemovedFromRoom = "user-removed-from-room"
	EventMemberRemoved       = "member-removed"
	EventError               = "error"
)

// Envelope is one frame on the wire: an event name plus its payload.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// InboundEnvelope defers payload decoding until the event name is known.
type InboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payloads.

type JoinRoomPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type LeaveRoomPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID  uuid.UUID `json:"room_id"`
	Content string    `json:"content"`
}

type TypingPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	IsTyping bool      `json:"is_typing"`
}

// Outbound payloads.

type NewMessagePayload struct {
	Message *domain.Message `json:"message"`
	RoomID  uuid.UUID       `json:"room_id"`
}

type MessageUpdatedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	RoomID    uuid.UUID `json:"room_id"`
}

type MessageDeletedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	RoomID    uuid.UUID `json:"room_id"`
}

type UserTypingPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	RoomID   uuid.UUID `json:"room_id"`
	IsTyping bool      `json:"is_typing"`
}

type UserJoinedPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	RoomID   uuid.UUID `json:"room_id"`
}

type UserLeftPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	RoomID   uuid.UUID `json:"room_id"`
}

type UserOfflineInRoomPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	RoomID   uuid.UUID `json:"room_id"`
}

type RoomDeletedPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	RoomName string    `json:"room_name"`
	Message  string    `json:"message"`
}

type RoomUpdatedPayload struct {
	RoomID      uuid.UUID    `json:"room_id"`
	RoomName    string       `json:"room_name"`
	AvatarURL   *string      `json:"avatar_url,omitempty"`
	UpdatedRoom *domain.Room `json:"updated_room"`
	Message     string       `json:"message"`
}

const (
	RoomListActionCreated = "created"
	RoomListActionUpdated = "updated"
	RoomListActionAdded   = "added"
	RoomListActionRemoved = "removed"
	RoomListActionDeleted = "deleted"
)

type RoomListUpdatedPayload struct {
	Action string       `json:"action"`
	Room   *domain.Room `json:"room"`
}

type UserRemovedFromRoomPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	RoomName string    `json:"room_name"`
	Message  string    `json:"message"`
}

type MemberRemovedPayload struct {
	RoomID          uuid.UUID `json:"room_id"`
	RoomName        string    `json:"room_name"`
	RemovedUserID   uuid.UUID `json:"removed_user_id"`
	RemovedUsername string    `json:"removed_username"`
	Message         string    `json:"message"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
