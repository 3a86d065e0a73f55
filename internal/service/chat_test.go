package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"chat_server/internal/config"
	"chat_server/internal/domain"
	"chat_server/internal/ws"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

func newChatFixture() (ChatService, *fakeRoomRepo, *fakeMessageRepo, *ws.Hub) {
	roomRepo := newFakeRoomRepo()
	messageRepo := newFakeMessageRepo()
	hub := newTestHub()
	cfg := config.ChatConfig{MaxMessageLength: 20}
	svc := NewChatService(messageRepo, roomRepo, &fakeMessageCache{}, hub, cfg, logger.NewNop())
	return svc, roomRepo, messageRepo, hub
}

func seedRoom(roomRepo *fakeRoomRepo, authorID uuid.UUID, members ...uuid.UUID) uuid.UUID {
	room := &domain.Room{ID: uuid.New(), Name: "general", AuthorID: authorID}
	_ = roomRepo.Create(context.Background(), room)
	for _, m := range members {
		_ = roomRepo.AddParticipant(context.Background(), &domain.RoomParticipant{RoomID: room.ID, UserID: m})
	}
	return room.ID
}

func TestSendMessageBroadcastsToRoomIncludingSender(t *testing.T) {
	svc, roomRepo, messageRepo, hub := newChatFixture()
	sender := uuid.New()
	other := uuid.New()
	roomID := seedRoom(roomRepo, sender, other)

	senderConn := newTestConn(sender, "alice")
	otherConn := newTestConn(other, "bob")
	joinConn(hub, senderConn, roomID)
	joinConn(hub, otherConn, roomID)

	message, err := svc.SendMessage(context.Background(), roomID, sender, "alice", "hello room")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if messageRepo.count() != 1 {
		t.Fatalf("persisted %d messages, want 1", messageRepo.count())
	}

	// Both the sender's own device and the other member see the message.
	for name, conn := range map[string]*testConn{"sender": senderConn, "other": otherConn} {
		frames := conn.delivered()
		if len(frames) != 1 || frames[0].Event != ws.EventNewMessage {
			t.Fatalf("%s frames = %v, want one new-message", name, conn.events())
		}
		payload := frames[0].Data.(ws.NewMessagePayload)
		if payload.Message.ID != message.ID {
			t.Fatalf("%s got message %v, want %v", name, payload.Message.ID, message.ID)
		}
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	svc, roomRepo, messageRepo, hub := newChatFixture()
	author := uuid.New()
	stranger := uuid.New()
	roomID := seedRoom(roomRepo, author)

	authorConn := newTestConn(author, "alice")
	joinConn(hub, authorConn, roomID)

	_, err := svc.SendMessage(context.Background(), roomID, stranger, "mallory", "hi")
	if !errors.Is(err, apperrors.ErrNotParticipant) {
		t.Fatalf("error = %v, want ErrNotParticipant", err)
	}
	if messageRepo.count() != 0 {
		t.Fatal("rejected message must not be persisted")
	}
	if got := len(authorConn.delivered()); got != 0 {
		t.Fatalf("room received %d frames from a rejected send, want 0", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, roomRepo, _, _ := newChatFixture()
	author := uuid.New()
	roomID := seedRoom(roomRepo, author)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"empty", "", apperrors.ErrEmptyMessage},
		{"whitespace", "  \n ", apperrors.ErrEmptyMessage},
		{"too long", "this content exceeds the configured limit", apperrors.ErrMessageTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(context.Background(), roomID, author, "alice", tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEditMessageIsAuthorOnly(t *testing.T) {
	svc, roomRepo, messageRepo, _ := newChatFixture()
	author := uuid.New()
	other := uuid.New()
	roomID := seedRoom(roomRepo, author, other)

	msg := &domain.Message{ID: uuid.New(), RoomID: roomID, AuthorID: author, Content: "original", CreatedAt: time.Now()}
	_ = messageRepo.Create(context.Background(), msg)

	if _, err := svc.EditMessage(context.Background(), msg.ID, other, "hijacked"); !errors.Is(err, apperrors.ErrNotMessageAuthor) {
		t.Fatalf("error = %v, want ErrNotMessageAuthor", err)
	}

	edited, err := svc.EditMessage(context.Background(), msg.ID, author, "revised")
	if err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if edited.Content != "revised" {
		t.Fatalf("content = %q, want revised", edited.Content)
	}
}

func TestDeleteMessageBroadcastsToRoom(t *testing.T) {
	svc, roomRepo, messageRepo, hub := newChatFixture()
	author := uuid.New()
	other := uuid.New()
	roomID := seedRoom(roomRepo, author, other)

	msg := &domain.Message{ID: uuid.New(), RoomID: roomID, AuthorID: author, Content: "delete me", CreatedAt: time.Now()}
	_ = messageRepo.Create(context.Background(), msg)

	otherConn := newTestConn(other, "bob")
	joinConn(hub, otherConn, roomID)

	if err := svc.DeleteMessage(context.Background(), msg.ID, author); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	frames := otherConn.delivered()
	if len(frames) != 1 || frames[0].Event != ws.EventMessageDeleted {
		t.Fatalf("frames = %v, want one message-deleted", otherConn.events())
	}
	payload := frames[0].Data.(ws.MessageDeletedPayload)
	if payload.MessageID != msg.ID || payload.RoomID != roomID {
		t.Fatalf("payload = %+v, want the deleted message and its room", payload)
	}
}
