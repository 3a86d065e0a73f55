package wsclient

import (
	"encoding/json"
	"sync"

	"chat_server/internal/ws"
)

// callbackList is a minimal add/remove subscriber set. Add returns a
// closure that removes exactly the callback it registered, so two
// identical functions never collide.
type callbackList[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (l *callbackList[T]) add(fn func(T)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *callbackList[T]) emit(v T) {
	l.mu.Lock()
	snapshot := make([]func(T), 0, len(l.fns))
	for _, fn := range l.fns {
		snapshot = append(snapshot, fn)
	}
	l.mu.Unlock()

	for _, fn := range snapshot {
		fn(v)
	}
}

type subscriptions struct {
	state  callbackList[State]
	logout callbackList[struct{}]

	newMessage     callbackList[ws.NewMessagePayload]
	messageUpdated callbackList[ws.MessageUpdatedPayload]
	messageDeleted callbackList[ws.MessageDeletedPayload]
	userTyping     callbackList[ws.UserTypingPayload]
	userJoined     callbackList[ws.UserJoinedPayload]
	userLeft       callbackList[ws.UserLeftPayload]
	userOffline    callbackList[ws.UserOfflineInRoomPayload]
	roomDeleted    callbackList[ws.RoomDeletedPayload]
	roomUpdated    callbackList[ws.RoomUpdatedPayload]
	roomList       callbackList[ws.RoomListUpdatedPayload]
	userRemoved    callbackList[ws.UserRemovedFromRoomPayload]
	memberRemoved  callbackList[ws.MemberRemovedPayload]
	serverError    callbackList[ws.ErrorPayload]
}

// OnStateChange subscribes to connection-state transitions. The
// returned closure removes the subscription.
func (m *Manager) OnStateChange(fn func(State)) func() { return m.subs.state.add(fn) }

// OnForcedLogout fires when an auth failure survives a token refresh.
// The consumer is expected to clear credentials and return to login.
func (m *Manager) OnForcedLogout(fn func()) func() {
	return m.subs.logout.add(func(struct{}) { fn() })
}

func (m *Manager) OnNewMessage(fn func(ws.NewMessagePayload)) func() {
	return m.subs.newMessage.add(fn)
}

func (m *Manager) OnMessageUpdated(fn func(ws.MessageUpdatedPayload)) func() {
	return m.subs.messageUpdated.add(fn)
}

func (m *Manager) OnMessageDeleted(fn func(ws.MessageDeletedPayload)) func() {
	return m.subs.messageDeleted.add(fn)
}

func (m *Manager) OnUserTyping(fn func(ws.UserTypingPayload)) func() {
	return m.subs.userTyping.add(fn)
}

func (m *Manager) OnUserJoined(fn func(ws.UserJoinedPayload)) func() {
	return m.subs.userJoined.add(fn)
}

func (m *Manager) OnUserLeft(fn func(ws.UserLeftPayload)) func() {
	return m.subs.userLeft.add(fn)
}

func (m *Manager) OnUserOfflineInRoom(fn func(ws.UserOfflineInRoomPayload)) func() {
	return m.subs.userOffline.add(fn)
}

func (m *Manager) OnRoomDeleted(fn func(ws.RoomDeletedPayload)) func() {
	return m.subs.roomDeleted.add(fn)
}

func (m *Manager) OnRoomUpdated(fn func(ws.RoomUpdatedPayload)) func() {
	return m.subs.roomUpdated.add(fn)
}

func (m *Manager) OnRoomListUpdated(fn func(ws.RoomListUpdatedPayload)) func() {
	return m.subs.roomList.add(fn)
}

func (m *Manager) OnUserRemovedFromRoom(fn func(ws.UserRemovedFromRoomPayload)) func() {
	return m.subs.userRemoved.add(fn)
}

func (m *Manager) OnMemberRemoved(fn func(ws.MemberRemovedPayload)) func() {
	return m.subs.memberRemoved.add(fn)
}

func (m *Manager) OnServerError(fn func(ws.ErrorPayload)) func() {
	return m.subs.serverError.add(fn)
}

// dispatch decodes a server frame and fans it out to subscribers.
// Unknown events and malformed payloads are logged and dropped: the
// server may grow new events before every client updates.
func (m *Manager) dispatch(env ws.InboundEnvelope) {
	switch env.Event {
	case ws.EventNewMessage:
		decodeAndEmit(m, env, &m.subs.newMessage)
	case ws.EventMessageUpdated:
		decodeAndEmit(m, env, &m.subs.messageUpdated)
	case ws.EventMessageDeleted:
		decodeAndEmit(m, env, &m.subs.messageDeleted)
	case ws.EventUserTyping:
		decodeAndEmit(m, env, &m.subs.userTyping)
	case ws.EventUserJoined:
		decodeAndEmit(m, env, &m.subs.userJoined)
	case ws.EventUserLeft:
		decodeAndEmit(m, env, &m.subs.userLeft)
	case ws.EventUserOfflineInRoom:
		decodeAndEmit(m, env, &m.subs.userOffline)
	case ws.EventRoomDeleted:
		decodeAndEmit(m, env, &m.subs.roomDeleted)
	case ws.EventRoomUpdated:
		decodeAndEmit(m, env, &m.subs.roomUpdated)
	case ws.EventRoomListUpdated:
		decodeAndEmit(m, env, &m.subs.roomList)
	case ws.EventUserRemovedFromRoom:
		decodeAndEmit(m, env, &m.subs.userRemoved)
	case ws.EventMemberRemoved:
		decodeAndEmit(m, env, &m.subs.memberRemoved)
	case ws.EventError:
		decodeAndEmit(m, env, &m.subs.serverError)
	default:
		m.log.Debug("ignoring unknown event", "event", env.Event)
	}
}

func decodeAndEmit[T any](m *Manager, env ws.InboundEnvelope, list *callbackList[T]) {
	var payload T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			m.log.Warn("malformed event payload", "event", env.Event, "error", err)
			return
		}
	}
	list.emit(payload)
}
