package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_server/pkg/logger"
)

type typingKey struct {
	roomID uuid.UUID
	userID uuid.UUID
}

type typingState struct {
	isTyping  bool
	updatedAt time.Time
}

// PresenceCoordinator derives online/offline and is-typing signals
// from registry and membership changes. Typing indicators are best
// effort: never queued, never retried, and ignored once stale.
type PresenceCoordinator struct {
	mu         sync.Mutex
	typing     map[typingKey]typingState
	staleAfter time.Duration

	registry  *Registry
	rooms     *RoomTracker
	broadcast *Broadcaster
	log       logger.Logger

	now func() time.Time
}

func NewPresenceCoordinator(registry *Registry, rooms *RoomTracker, broadcast *Broadcaster, staleAfter time.Duration, log logger.Logger) *PresenceCoordinator {
	return &PresenceCoordinator{
		typing:     make(map[typingKey]typingState),
		staleAfter: staleAfter,
		registry:   registry,
		rooms:      rooms,
		broadcast:  broadcast,
		log:        log,
		now:        time.Now,
	}
}

// SetTyping updates the per-(room,user) indicator and, when the value
// actually changed, emits user-typing to the other connections in the
// room. The originating user's own connections never receive the echo.
func (p *PresenceCoordinator) SetTyping(roomID, userID uuid.UUID, username string, isTyping bool) {
	p.mu.Lock()
	key := typingKey{roomID: roomID, userID: userID}
	prev, known := p.typing[key]

	// An indicator a client never cleared (unclean disconnect) expires
	// server-side and counts as not typing.
	if known && prev.isTyping && p.now().Sub(prev.updatedAt) > p.staleAfter {
		prev.isTyping = false
	}

	wasTyping := known && prev.isTyping
	changed := wasTyping != isTyping
	if isTyping {
		p.typing[key] = typingState{isTyping: true, updatedAt: p.now()}
	} else {
		delete(p.typing, key)
	}
	p.mu.Unlock()

	if !changed {
		return
	}

	p.broadcast.ToRoomExceptUser(roomID, userID, EventUserTyping, UserTypingPayload{
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		IsTyping: isTyping,
	})
}

// IsTyping reports the current indicator, treating stale entries as false.
func (p *PresenceCoordinator) IsTyping(roomID, userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.typing[typingKey{roomID: roomID, userID: userID}]
	if !ok || !state.isTyping {
		return false
	}
	return p.now().Sub(state.updatedAt) <= p.staleAfter
}

// ConnectionClosed emits the graceful offline signal. For every room
// the departing connection belonged to, user-offline-in-room goes to
// the remaining members, but only when this was the user's last
// connection; other devices keep the user online.
func (p *PresenceCoordinator) ConnectionClosed(userID uuid.UUID, username string, roomIDs []uuid.UUID, wasLast bool) {
	if !wasLast {
		return
	}

	p.mu.Lock()
	for _, roomID := range roomIDs {
		delete(p.typing, typingKey{roomID: roomID, userID: userID})
	}
	p.mu.Unlock()

	for _, roomID := range roomIDs {
		p.broadcast.ToRoomExceptUser(roomID, userID, EventUserOfflineInRoom, UserOfflineInRoomPayload{
			UserID:   userID,
			Username: username,
			RoomID:   roomID,
		})
	}
}
