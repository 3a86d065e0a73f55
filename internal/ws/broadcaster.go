package ws

import (
	"github.com/google/uuid"

	"chat_server/pkg/logger"
)

// Broadcaster fans one logical event out to many live connections.
// Delivery is fire-and-forget per connection: a connection that closed
// microseconds earlier, or whose buffer is full, is skipped without
// aborting delivery to the rest.
type Broadcaster struct {
	registry *Registry
	rooms    *RoomTracker
	log      logger.Logger
}

func NewBroadcaster(registry *Registry, rooms *RoomTracker, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		rooms:    rooms,
		log:      log,
	}
}

func (b *Broadcaster) ToRoom(roomID uuid.UUID, event string, payload any) {
	b.toRoom(roomID, uuid.Nil, event, payload)
}

// ToRoomExceptUser delivers to every connection in the room except the
// given user's own. Used for typing and join echoes.
func (b *Broadcaster) ToRoomExceptUser(roomID uuid.UUID, exceptUser uuid.UUID, event string, payload any) {
	b.toRoom(roomID, exceptUser, event, payload)
}

func (b *Broadcaster) toRoom(roomID uuid.UUID, exceptUser uuid.UUID, event string, payload any) {
	env := Envelope{Event: event, Data: payload}
	for _, connID := range b.rooms.ConnectionsInRoom(roomID) {
		c, ok := b.registry.Get(connID)
		if !ok {
			// Stale tracker entry; the disconnect purge will catch it.
			continue
		}
		if exceptUser != uuid.Nil && c.UserID() == exceptUser {
			continue
		}
		if !c.Deliver(env) {
			b.log.Warn("dropped frame for connection", "connection_id", connID, "event", event)
		}
	}
}

// ToUser delivers to every connection of the user (multi-device fan-out).
func (b *Broadcaster) ToUser(userID uuid.UUID, event string, payload any) {
	env := Envelope{Event: event, Data: payload}
	for _, c := range b.registry.ConnectionsFor(userID) {
		if !c.Deliver(env) {
			b.log.Warn("dropped frame for connection", "connection_id", c.ID(), "event", event)
		}
	}
}

func (b *Broadcaster) ToAll(event string, payload any) {
	env := Envelope{Event: event, Data: payload}
	for _, c := range b.registry.All() {
		if !c.Deliver(env) {
			b.log.Warn("dropped frame for connection", "connection_id", c.ID(), "event", event)
		}
	}
}
