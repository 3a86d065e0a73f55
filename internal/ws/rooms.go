package ws

import (
	"sync"

	"github.com/google/uuid"
)

// RoomTracker records which connections are interested in which rooms.
// It does not check authorization: callers must have verified the user
// is a room participant before Join.
type RoomTracker struct {
	mu     sync.RWMutex
	byRoom map[uuid.UUID]map[string]struct{}
	byConn map[string]map[uuid.UUID]struct{}
}

func NewRoomTracker() *RoomTracker {
	return &RoomTracker{
		byRoom: make(map[uuid.UUID]map[string]struct{}),
		byConn: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Join is idempotent: joining the same room twice with one connection
// does not double-count it.
func (t *RoomTracker) Join(connID string, roomID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conns := t.byRoom[roomID]
	if conns == nil {
		conns = make(map[string]struct{})
		t.byRoom[roomID] = conns
	}
	conns[connID] = struct{}{}

	rooms := t.byConn[connID]
	if rooms == nil {
		rooms = make(map[uuid.UUID]struct{})
		t.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (t *RoomTracker) Leave(connID string, roomID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(connID, roomID)
}

func (t *RoomTracker) leaveLocked(connID string, roomID uuid.UUID) {
	if conns := t.byRoom[roomID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(t.byRoom, roomID)
		}
	}
	if rooms := t.byConn[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.byConn, connID)
		}
	}
}

func (t *RoomTracker) InRoom(connID string, roomID uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byRoom[roomID][connID]
	return ok
}

func (t *RoomTracker) ConnectionsInRoom(roomID uuid.UUID) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.byRoom[roomID]))
	for id := range t.byRoom[roomID] {
		ids = append(ids, id)
	}
	return ids
}

func (t *RoomTracker) RoomsFor(connID string) []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rooms := make([]uuid.UUID, 0, len(t.byConn[connID]))
	for id := range t.byConn[connID] {
		rooms = append(rooms, id)
	}
	return rooms
}

// Purge removes every membership of the connection and returns the
// rooms it belonged to. Called on disconnect; skipping it would leak
// entries and waste broadcasts on dead connections.
func (t *RoomTracker) Purge(connID string) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := make([]uuid.UUID, 0, len(t.byConn[connID]))
	for roomID := range t.byConn[connID] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		t.leaveLocked(connID, roomID)
	}
	return rooms
}

// RemoveRoom drops every membership of the room, for room deletion.
// Runs after the persistence delete and before the broadcast, so no
// in-flight request can fan out to the dead room afterwards.
func (t *RoomTracker) RemoveRoom(roomID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for connID := range t.byRoom[roomID] {
		if rooms := t.byConn[connID]; rooms != nil {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(t.byConn, connID)
			}
		}
	}
	delete(t.byRoom, roomID)
}
