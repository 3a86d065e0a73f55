package domain

import (
	"time"

	"github.com/google/uuid"
)

// Room is a named group chat. The author is always a participant; a
// room with zero participants is eligible for external cleanup.
type Room struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	AvatarURL     *string    `json:"avatar_url,omitempty"`
	AuthorID      uuid.UUID  `json:"author_id"`
	LastMessageID *uuid.UUID `json:"last_message_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type RoomParticipant struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}
