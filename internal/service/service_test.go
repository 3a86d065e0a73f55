package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_server/internal/config"
	"chat_server/internal/domain"
	"chat_server/internal/ws"
	apperrors "chat_server/pkg/errors"
	"chat_server/pkg/logger"
)

// In-memory repository fakes shared by the service tests.

type fakeRoomRepo struct {
	mu           sync.Mutex
	rooms        map[uuid.UUID]*domain.Room
	participants map[uuid.UUID]map[uuid.UUID]*domain.RoomParticipant
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:        make(map[uuid.UUID]*domain.Room),
		participants: make(map[uuid.UUID]map[uuid.UUID]*domain.RoomParticipant),
	}
}

func (r *fakeRoomRepo) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = room
	r.participants[room.ID] = map[uuid.UUID]*domain.RoomParticipant{
		room.AuthorID: {RoomID: room.ID, UserID: room.AuthorID, JoinedAt: time.Now()},
	}
	return nil
}

func (r *fakeRoomRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, apperrors.ErrRoomNotFound
	}
	return room, nil
}

func (r *fakeRoomRepo) List(_ context.Context, userID uuid.UUID, _, _ int) ([]*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Room
	for roomID, members := range r.participants {
		if _, ok := members[userID]; ok {
			out = append(out, r.rooms[roomID])
		}
	}
	return out, nil
}

func (r *fakeRoomRepo) Update(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; !ok {
		return apperrors.ErrRoomNotFound
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *fakeRoomRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[id]; !ok {
		return apperrors.ErrRoomNotFound
	}
	delete(r.rooms, id)
	delete(r.participants, id)
	return nil
}

func (r *fakeRoomRepo) SetLastMessage(_ context.Context, roomID, messageID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		room.LastMessageID = &messageID
	}
	return nil
}

func (r *fakeRoomRepo) AddParticipant(_ context.Context, p *domain.RoomParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.participants[p.RoomID]
	if !ok {
		return apperrors.ErrRoomNotFound
	}
	members[p.UserID] = p
	return nil
}

func (r *fakeRoomRepo) RemoveParticipant(_ context.Context, roomID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.participants[roomID]
	if !ok {
		return apperrors.ErrRoomNotFound
	}
	if _, ok := members[userID]; !ok {
		return apperrors.ErrNotParticipant
	}
	delete(members, userID)
	return nil
}

func (r *fakeRoomRepo) IsParticipant(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[roomID][userID]
	return ok, nil
}

func (r *fakeRoomRepo) GetParticipants(_ context.Context, roomID uuid.UUID) ([]*domain.RoomParticipant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.RoomParticipant
	for _, p := range r.participants[roomID] {
		out = append(out, p)
	}
	return out, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]*domain.Message)}
}

func (r *fakeMessageRepo) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.ID] = m
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	return m, nil
}

func (r *fakeMessageRepo) ListByRoom(_ context.Context, roomID uuid.UUID, _, _ int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) Update(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; !ok {
		return apperrors.ErrMessageNotFound
	}
	r.messages[m.ID] = m
	return nil
}

func (r *fakeMessageRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return apperrors.ErrMessageNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

type fakeMessageCache struct {
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (c *fakeMessageCache) Push(context.Context, uuid.UUID, *domain.Message) error { return nil }

func (c *fakeMessageCache) Recent(context.Context, uuid.UUID, int) ([]*domain.Message, error) {
	return nil, nil
}

func (c *fakeMessageCache) Invalidate(_ context.Context, roomID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, roomID)
	return nil
}

type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	sessions map[string]*domain.UserSession
	revoked  map[uuid.UUID]string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[uuid.UUID]*domain.User),
		sessions: make(map[string]*domain.UserSession),
		revoked:  make(map[uuid.UUID]string),
	}
}

// cloneUser copies the user so callers mutating the returned struct
// (e.g. zeroing PasswordHash) don't alias the fake's stored state,
// mirroring the value semantics of a database-backed repository.
func cloneUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *fakeUserRepo) CreateSession(_ context.Context, s *domain.UserSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.RefreshTokenHash] = s
	return nil
}

func (r *fakeUserRepo) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[tokenHash]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if _, gone := r.revoked[s.ID]; gone {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (r *fakeUserRepo) RevokeSession(_ context.Context, sessionID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[sessionID] = reason
	return nil
}

// testConn is an in-memory ws.Connection recording delivered frames.
type testConn struct {
	id       string
	userID   uuid.UUID
	username string

	mu     sync.Mutex
	frames []ws.Envelope
}

func newTestConn(userID uuid.UUID, username string) *testConn {
	return &testConn{id: uuid.NewString(), userID: userID, username: username}
}

func (c *testConn) ID() string        { return c.id }
func (c *testConn) UserID() uuid.UUID { return c.userID }
func (c *testConn) Username() string  { return c.username }

func (c *testConn) Deliver(env ws.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, env)
	return true
}

func (c *testConn) delivered() []ws.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ws.Envelope, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *testConn) events() []string {
	var names []string
	for _, env := range c.delivered() {
		names = append(names, env.Event)
	}
	return names
}

func newTestHub() *ws.Hub {
	return ws.NewHub(config.ChatConfig{MaxMessageLength: 2000, TypingStaleAfter: 5 * time.Second}, logger.NewNop())
}

// joinConn registers the connection and attaches it to the room.
func joinConn(hub *ws.Hub, c *testConn, roomID uuid.UUID) {
	hub.AddConnection(c)
	hub.Rooms().Join(c.ID(), roomID)
}
