package ws

import (
	"sync"

	"github.com/google/uuid"
)

// Connection is one live transport session for one authenticated user.
// Deliver must never block; it reports false when the frame was dropped
// because the connection is closing or its buffer is full.
type Connection interface {
	ID() string
	UserID() uuid.UUID
	Username() string
	Deliver(env Envelope) bool
}

// Registry maps authenticated users to their live connections. A user
// may hold several connections (tabs, devices); a connection belongs to
// exactly one user. Presence is derived, never stored: a user is online
// iff at least one connection is registered for them.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Connection
	byUser map[uuid.UUID]map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]Connection),
		byUser: make(map[uuid.UUID]map[string]Connection),
	}
}

// Register adds the connection. Idempotent per connection id.
func (r *Registry) Register(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[c.ID()]; ok {
		return
	}
	r.byID[c.ID()] = c
	conns := r.byUser[c.UserID()]
	if conns == nil {
		conns = make(map[string]Connection)
		r.byUser[c.UserID()] = conns
	}
	conns[c.ID()] = c
}

// Unregister removes the connection and reports whether it was the
// user's last one. The offline transition is decided under the same
// lock as the removal, so callers see it in the same tick.
func (r *Registry) Unregister(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[connID]
	if !ok {
		return nil, false
	}
	delete(r.byID, connID)

	conns := r.byUser[c.UserID()]
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, c.UserID())
		return c, true
	}
	return c, false
}

func (r *Registry) ConnectionsFor(userID uuid.UUID) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[connID]
	return c, ok
}

func (r *Registry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, c)
	}
	return conns
}
