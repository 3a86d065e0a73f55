package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"chat_server/internal/domain"
	"chat_server/internal/ws"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

func newRoomFixture() (RoomService, *fakeRoomRepo, *fakeUserRepo, *ws.Hub) {
	roomRepo := newFakeRoomRepo()
	userRepo := newFakeUserRepo()
	hub := newTestHub()
	svc := NewRoomService(roomRepo, userRepo, &fakeMessageCache{}, hub, logger.NewNop())
	return svc, roomRepo, userRepo, hub
}

func seedUser(userRepo *fakeUserRepo, username string) uuid.UUID {
	u := &domain.User{ID: uuid.New(), Username: username, Email: username + "@example.com"}
	_ = userRepo.Create(context.Background(), u)
	return u.ID
}

func TestCreateRoomNotifiesAuthorDevices(t *testing.T) {
	svc, _, userRepo, hub := newRoomFixture()
	author := seedUser(userRepo, "alice")

	phone := newTestConn(author, "alice")
	laptop := newTestConn(author, "alice")
	hub.AddConnection(phone)
	hub.AddConnection(laptop)

	room, err := svc.Create(context.Background(), author, "general", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for name, conn := range map[string]*testConn{"phone": phone, "laptop": laptop} {
		frames := conn.delivered()
		if len(frames) != 1 || frames[0].Event != ws.EventRoomListUpdated {
			t.Fatalf("%s frames = %v, want one room-list-updated", name, conn.events())
		}
		payload := frames[0].Data.(ws.RoomListUpdatedPayload)
		if payload.Action != ws.RoomListActionCreated || payload.Room.ID != room.ID {
			t.Fatalf("%s payload = %+v, want created action for the new room", name, payload)
		}
	}
}

func TestDeleteRoomIsAuthorOnly(t *testing.T) {
	svc, roomRepo, userRepo, _ := newRoomFixture()
	author := seedUser(userRepo, "alice")
	member := seedUser(userRepo, "bob")
	roomID := seedRoom(roomRepo, author, member)

	if err := svc.Delete(context.Background(), roomID, member); !errors.Is(err, apperrors.ErrNotRoomAuthor) {
		t.Fatalf("error = %v, want ErrNotRoomAuthor", err)
	}
	if _, err := roomRepo.GetByID(context.Background(), roomID); err != nil {
		t.Fatal("rejected delete must leave the room in place")
	}
}

func TestDeleteRoomPurgesTrackerBeforeBroadcast(t *testing.T) {
	svc, roomRepo, userRepo, hub := newRoomFixture()
	author := seedUser(userRepo, "alice")
	member := seedUser(userRepo, "bob")
	roomID := seedRoom(roomRepo, author, member)

	memberConn := newTestConn(member, "bob")
	joinConn(hub, memberConn, roomID)

	if err := svc.Delete(context.Background(), roomID, author); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// The member still hears about the deletion even though the room's
	// fan-out targets are already purged.
	frames := memberConn.delivered()
	if len(frames) != 1 || frames[0].Event != ws.EventRoomDeleted {
		t.Fatalf("member frames = %v, want one room-deleted", memberConn.events())
	}

	// Nothing can reach the dead room afterwards.
	hub.Broadcast().ToRoom(roomID, ws.EventNewMessage, ws.NewMessagePayload{RoomID: roomID})
	if got := len(memberConn.delivered()); got != 1 {
		t.Fatalf("member received %d frames, want 1: the dead room must have no targets", got)
	}
}

func TestRemoveParticipantDetachesConnectionsBeforeBroadcast(t *testing.T) {
	svc, roomRepo, userRepo, hub := newRoomFixture()
	author := seedUser(userRepo, "alice")
	removed := seedUser(userRepo, "bob")
	bystander := seedUser(userRepo, "carol")
	roomID := seedRoom(roomRepo, author, removed, bystander)

	removedConn := newTestConn(removed, "bob")
	bystanderConn := newTestConn(bystander, "carol")
	joinConn(hub, removedConn, roomID)
	joinConn(hub, bystanderConn, roomID)

	if err := svc.RemoveParticipant(context.Background(), roomID, author, removed); err != nil {
		t.Fatalf("RemoveParticipant: %v", err)
	}

	if hub.Rooms().InRoom(removedConn.ID(), roomID) {
		t.Fatal("removed user's connection must be detached from the room")
	}

	// The removed user gets a direct notice, not the room's version.
	frames := removedConn.delivered()
	if len(frames) != 1 || frames[0].Event != ws.EventUserRemovedFromRoom {
		t.Fatalf("removed user frames = %v, want one user-removed-from-room", removedConn.events())
	}

	frames = bystanderConn.delivered()
	if len(frames) != 1 || frames[0].Event != ws.EventMemberRemoved {
		t.Fatalf("bystander frames = %v, want one member-removed", bystanderConn.events())
	}
	payload := frames[0].Data.(ws.MemberRemovedPayload)
	if payload.RemovedUserID != removed {
		t.Fatalf("payload names %v, want the removed user %v", payload.RemovedUserID, removed)
	}
}

func TestRemoveParticipantRejectsRemovingAuthor(t *testing.T) {
	svc, roomRepo, userRepo, _ := newRoomFixture()
	author := seedUser(userRepo, "alice")
	roomID := seedRoom(roomRepo, author)

	if err := svc.RemoveParticipant(context.Background(), roomID, author, author); err == nil {
		t.Fatal("removing the room author must fail")
	}
}

func TestLeaveDetachesAndNotifiesRoom(t *testing.T) {
	svc, roomRepo, userRepo, hub := newRoomFixture()
	author := seedUser(userRepo, "alice")
	leaver := seedUser(userRepo, "bob")
	roomID := seedRoom(roomRepo, author, leaver)

	leaverConn := newTestConn(leaver, "bob")
	authorConn := newTestConn(author, "alice")
	joinConn(hub, leaverConn, roomID)
	joinConn(hub, authorConn, roomID)

	if err := svc.Leave(context.Background(), roomID, leaver); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	if hub.Rooms().InRoom(leaverConn.ID(), roomID) {
		t.Fatal("leaver's connection must be detached")
	}

	frames := authorConn.delivered()
	if len(frames) != 1 || frames[0].Event != ws.EventUserLeft {
		t.Fatalf("author frames = %v, want one user-left", authorConn.events())
	}

	// The leaver's own device gets the room-list update, not user-left.
	frames = leaverConn.delivered()
	if len(frames) != 1 || frames[0].Event != ws.EventRoomListUpdated {
		t.Fatalf("leaver frames = %v, want one room-list-updated", leaverConn.events())
	}
	payload := frames[0].Data.(ws.RoomListUpdatedPayload)
	if payload.Action != ws.RoomListActionRemoved {
		t.Fatalf("action = %q, want removed", payload.Action)
	}
}

func TestLeaveRejectsRoomAuthor(t *testing.T) {
	svc, roomRepo, userRepo, _ := newRoomFixture()
	author := seedUser(userRepo, "alice")
	roomID := seedRoom(roomRepo, author)

	if err := svc.Leave(context.Background(), roomID, author); err == nil {
		t.Fatal("the room author must not be able to leave their own room")
	}
}

func TestUpdateRoomIsAuthorOnly(t *testing.T) {
	svc, roomRepo, userRepo, _ := newRoomFixture()
	author := seedUser(userRepo, "alice")
	member := seedUser(userRepo, "bob")
	roomID := seedRoom(roomRepo, author, member)

	newName := "renamed"
	if _, err := svc.Update(context.Background(), roomID, member, &newName, nil); !errors.Is(err, apperrors.ErrNotRoomAuthor) {
		t.Fatalf("error = %v, want ErrNotRoomAuthor", err)
	}

	room, err := svc.Update(context.Background(), roomID, author, &newName, nil)
	if err != nil {
		t.Fatalf("author update: %v", err)
	}
	if room.Name != "renamed" {
		t.Fatalf("name = %q, want renamed", room.Name)
	}
}
