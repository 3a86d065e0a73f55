package domain

import (
	"time"

	"github.com/google/uuid"
)

// TypingIndicator is transient per-(room,user) state. It is never
// persisted and carries no delivery guarantee.
type TypingIndicator struct {
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	IsTyping  bool      `json:"is_typing"`
	UpdatedAt time.Time `json:"updated_at"`
}
