package ws

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"chat_server/pkg/logger"
)

func newTestPresence(staleAfter time.Duration) (*PresenceCoordinator, *Registry, *RoomTracker) {
	registry := NewRegistry()
	rooms := NewRoomTracker()
	broadcast := NewBroadcaster(registry, rooms, logger.NewNop())
	return NewPresenceCoordinator(registry, rooms, broadcast, staleAfter, logger.NewNop()), registry, rooms
}

func TestSetTypingExcludesTypistAndDeduplicates(t *testing.T) {
	p, registry, rooms := newTestPresence(5 * time.Second)
	roomID := uuid.New()

	typist := newFakeConn(uuid.New(), "alice")
	watcher := newFakeConn(uuid.New(), "bob")
	for _, c := range []*fakeConn{typist, watcher} {
		registry.Register(c)
		rooms.Join(c.ID(), roomID)
	}

	p.SetTyping(roomID, typist.UserID(), "alice", true)
	p.SetTyping(roomID, typist.UserID(), "alice", true) // repeat, no change
	p.SetTyping(roomID, typist.UserID(), "alice", false)

	if got := len(typist.delivered()); got != 0 {
		t.Fatalf("typist received %d typing echoes, want 0", got)
	}
	frames := watcher.delivered()
	if len(frames) != 2 {
		t.Fatalf("watcher received %d frames, want 2 (start and stop)", len(frames))
	}
	start := frames[0].Data.(UserTypingPayload)
	stop := frames[1].Data.(UserTypingPayload)
	if !start.IsTyping || stop.IsTyping {
		t.Fatalf("expected start then stop, got %v then %v", start.IsTyping, stop.IsTyping)
	}
}

func TestSetTypingStopWithoutStartIsSilent(t *testing.T) {
	p, registry, rooms := newTestPresence(5 * time.Second)
	roomID := uuid.New()

	typist := newFakeConn(uuid.New(), "alice")
	watcher := newFakeConn(uuid.New(), "bob")
	for _, c := range []*fakeConn{typist, watcher} {
		registry.Register(c)
		rooms.Join(c.ID(), roomID)
	}

	p.SetTyping(roomID, typist.UserID(), "alice", false)

	if got := len(watcher.delivered()); got != 0 {
		t.Fatalf("watcher received %d frames for a no-op stop, want 0", got)
	}
}

func TestTypingIndicatorExpiresServerSide(t *testing.T) {
	p, _, _ := newTestPresence(5 * time.Second)
	roomID := uuid.New()
	userID := uuid.New()

	current := time.Unix(1000, 0)
	p.now = func() time.Time { return current }

	p.SetTyping(roomID, userID, "alice", true)
	if !p.IsTyping(roomID, userID) {
		t.Fatal("indicator should be live immediately after SetTyping")
	}

	current = current.Add(6 * time.Second)
	if p.IsTyping(roomID, userID) {
		t.Fatal("indicator should have expired after the staleness window")
	}
}

func TestConnectionClosedBroadcastsOfflineOnlyForLastConnection(t *testing.T) {
	p, registry, rooms := newTestPresence(5 * time.Second)
	roomID := uuid.New()
	userID := uuid.New()

	watcher := newFakeConn(uuid.New(), "bob")
	registry.Register(watcher)
	rooms.Join(watcher.ID(), roomID)

	// Second device still open: no offline signal.
	p.ConnectionClosed(userID, "alice", []uuid.UUID{roomID}, false)
	if got := len(watcher.delivered()); got != 0 {
		t.Fatalf("watcher received %d frames while another device is open, want 0", got)
	}

	// Last device gone: exactly one offline signal per shared room.
	p.ConnectionClosed(userID, "alice", []uuid.UUID{roomID}, true)
	frames := watcher.delivered()
	if len(frames) != 1 {
		t.Fatalf("watcher received %d frames, want 1", len(frames))
	}
	if frames[0].Event != EventUserOfflineInRoom {
		t.Fatalf("event = %q, want %q", frames[0].Event, EventUserOfflineInRoom)
	}
}

func TestConnectionClosedClearsTypingState(t *testing.T) {
	p, _, _ := newTestPresence(5 * time.Second)
	roomID := uuid.New()
	userID := uuid.New()

	p.SetTyping(roomID, userID, "alice", true)
	p.ConnectionClosed(userID, "alice", []uuid.UUID{roomID}, true)

	if p.IsTyping(roomID, userID) {
		t.Fatal("typing state must be cleared when the user goes offline")
	}
}
