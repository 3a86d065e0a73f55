package ws

import (
	"github.com/google/uuid"

	"chat_server/internal/config"
	"chat_server/pkg/logger"
)

// Hub owns the mutable shared state of the real-time subsystem: the
// connection registry, the room membership tracker, the presence
// coordinator, and the broadcaster. It is an explicit instance created
// by main and injected where needed, never a package-level singleton.
// Nothing here is durable: after a restart clients reconnect and the
// state rebuilds itself.
type Hub struct {
	registry  *Registry
	rooms     *RoomTracker
	presence  *PresenceCoordinator
	broadcast *Broadcaster
	log       logger.Logger
}

func NewHub(cfg config.ChatConfig, log logger.Logger) *Hub {
	registry := NewRegistry()
	rooms := NewRoomTracker()
	broadcast := NewBroadcaster(registry, rooms, log)
	presence := NewPresenceCoordinator(registry, rooms, broadcast, cfg.TypingStaleAfter, log)

	return &Hub{
		registry:  registry,
		rooms:     rooms,
		presence:  presence,
		broadcast: broadcast,
		log:       log,
	}
}

func (h *Hub) Registry() *Registry             { return h.registry }
func (h *Hub) Rooms() *RoomTracker             { return h.rooms }
func (h *Hub) Presence() *PresenceCoordinator  { return h.presence }
func (h *Hub) Broadcast() *Broadcaster         { return h.broadcast }

// AddConnection registers a freshly authenticated connection.
func (h *Hub) AddConnection(c Connection) {
	h.registry.Register(c)
	h.log.Info("connection registered", "connection_id", c.ID(), "user_id", c.UserID())
}

// DropConnection runs the disconnect-cleanup path: unregister, purge
// room memberships, then the offline signal. Purge precedes the
// broadcast so the departing connection is never a fan-out target.
func (h *Hub) DropConnection(connID string) {
	c, wasLast := h.registry.Unregister(connID)
	if c == nil {
		return
	}
	roomIDs := h.rooms.Purge(connID)
	h.presence.ConnectionClosed(c.UserID(), c.Username(), roomIDs, wasLast)
	h.log.Info("connection dropped", "connection_id", connID, "user_id", c.UserID(), "was_last", wasLast)
}

// RemoveRoom purges all memberships of a deleted room.
func (h *Hub) RemoveRoom(roomID uuid.UUID) {
	h.rooms.RemoveRoom(roomID)
}

// DetachUserFromRoom removes every connection of the user from the
// room's membership. Used when a participant is removed or leaves over
// HTTP while their sockets are still joined.
func (h *Hub) DetachUserFromRoom(roomID, userID uuid.UUID) {
	for _, c := range h.registry.ConnectionsFor(userID) {
		h.rooms.Leave(c.ID(), roomID)
	}
}
