// Package wsclient maintains one logical chat connection on behalf of
// many consumers. Consumers call Connect/Disconnect in pairs; the
// underlying transport is opened when the first consumer arrives and
// torn down when the last one leaves. Transport drops are retried with
// exponential backoff, and authentication failures trigger a single
// token refresh before forcing a logout.
package wsclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat_server/internal/ws"
	"chat_server/pkg/logger"
)

var (
	ErrAuthFailed       = errors.New("wsclient: authentication failed")
	ErrNotConnected     = errors.New("wsclient: not connected")
	ErrRetriesExhausted = errors.New("wsclient: retry attempts exhausted")
	ErrNoCredentials    = errors.New("wsclient: no credentials available")
)

// State is the externally visible connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRetrying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TokenSource supplies the bearer token for the handshake. Refresh is
// called at most once per connection attempt, after an auth rejection.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type Config struct {
	URL              string
	DialTimeout      time.Duration
	WriteTimeout     time.Duration
	BaseRetryDelay   time.Duration
	MaxRetryAttempts int
}

func (c *Config) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = time.Second
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 5
	}
}

// Manager owns the transport and the retry machinery. All exported
// methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	tokens TokenSource
	dialer *websocket.Dialer
	log    logger.Logger

	mu      sync.Mutex
	refs    int
	state   State
	conn    *websocket.Conn
	attempt int
	gen     uint64
	lastErr error
	changed chan struct{}
	cancel  chan struct{}

	wmu sync.Mutex

	subs subscriptions
}

func NewManager(cfg Config, tokens TokenSource, log logger.Logger) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		tokens: tokens,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		log:    log,
		state:  StateIdle,
		changed: make(chan struct{}),
	}
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Refs reports the current consumer count.
func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Connect registers a consumer and blocks until the transport is open,
// a terminal failure is reached, or ctx is cancelled. Calling Connect
// while already connected only bumps the reference count.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.refs++
	if m.state == StateIdle || m.state == StateFailed {
		m.attempt = 0
		m.lastErr = nil
		m.setStateLocked(StateConnecting)
		go m.connectLoop(m.gen)
	}
	m.mu.Unlock()

	for {
		m.mu.Lock()
		switch m.state {
		case StateConnected:
			m.mu.Unlock()
			return nil
		case StateFailed:
			err := m.lastErr
			m.mu.Unlock()
			if err == nil {
				err = ErrRetriesExhausted
			}
			return err
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			m.Disconnect()
			return ctx.Err()
		case <-ch:
		}
	}
}

// Disconnect releases one consumer reference. When the count reaches
// zero the transport is closed and any pending retry is cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.refs == 0 {
		m.mu.Unlock()
		return
	}
	m.refs--
	if m.refs > 0 {
		m.mu.Unlock()
		return
	}

	m.gen++
	m.stopRetryLocked()
	conn := m.conn
	m.conn = nil
	m.attempt = 0
	m.setStateLocked(StateIdle)
	m.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(m.cfg.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
}

// connectLoop dials until connected, the attempt cap is hit, or the
// consumer count drops to zero. One loop runs per generation.
func (m *Manager) connectLoop(gen uint64) {
	allowRefresh := true

	for {
		m.mu.Lock()
		if m.gen != gen || m.refs == 0 {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateConnecting)
		m.mu.Unlock()

		conn, err := m.dialOnce()
		if err == nil {
			m.mu.Lock()
			if m.gen != gen || m.refs == 0 {
				m.mu.Unlock()
				conn.Close()
				return
			}
			m.conn = conn
			m.attempt = 0
			m.setStateLocked(StateConnected)
			m.mu.Unlock()
			go m.readLoop(conn, gen)
			return
		}

		if errors.Is(err, ErrAuthFailed) {
			if allowRefresh {
				allowRefresh = false
				refreshCtx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
				_, rerr := m.tokens.Refresh(refreshCtx)
				cancel()
				if rerr == nil {
					continue
				}
				m.log.Warn("token refresh failed", "error", rerr)
			}
			m.fail(gen, ErrAuthFailed)
			m.subs.logout.emit(struct{}{})
			return
		}
		if errors.Is(err, ErrNoCredentials) {
			m.fail(gen, err)
			return
		}

		m.mu.Lock()
		if m.gen != gen || m.refs == 0 {
			m.mu.Unlock()
			return
		}
		m.attempt++
		if m.attempt > m.cfg.MaxRetryAttempts {
			m.lastErr = ErrRetriesExhausted
			m.setStateLocked(StateFailed)
			m.mu.Unlock()
			m.log.Warn("giving up after repeated connection failures", "attempts", m.cfg.MaxRetryAttempts)
			return
		}
		delay := m.cfg.BaseRetryDelay * (1 << (m.attempt - 1))
		m.setStateLocked(StateRetrying)
		cancel := make(chan struct{})
		m.cancel = cancel
		m.mu.Unlock()

		m.log.Info("connection failed, retrying", "attempt", m.attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-cancel:
			timer.Stop()
			return
		}
	}
}

func (m *Manager) dialOnce() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	defer cancel()

	token, err := m.tokens.Token(ctx)
	if err != nil || token == "" {
		return nil, ErrNoCredentials
	}

	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := m.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthFailed
		}
		return nil, err
	}
	return conn, nil
}

// readLoop drains server frames and dispatches them to subscribers.
// On a transport drop it restarts the connect loop, unless the
// generation moved on or the last consumer already left.
func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		var env ws.InboundEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			m.mu.Lock()
			if m.gen != gen || m.refs == 0 {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			m.setStateLocked(StateConnecting)
			m.mu.Unlock()

			m.log.Info("connection lost", "error", err)
			conn.Close()
			m.connectLoop(gen)
			return
		}
		m.dispatch(env)
	}
}

func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	if m.gen == gen {
		m.lastErr = err
		m.setStateLocked(StateFailed)
	}
	m.mu.Unlock()
}

// setStateLocked records the new state and wakes Connect waiters.
// State-change subscribers run on their own goroutine so a slow
// callback cannot stall the connect loop.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	close(m.changed)
	m.changed = make(chan struct{})
	go m.subs.state.emit(s)
}

func (m *Manager) stopRetryLocked() {
	if m.cancel != nil {
		close(m.cancel)
		m.cancel = nil
	}
}

// JoinRoom asks the server to attach this connection to a room.
func (m *Manager) JoinRoom(roomID uuid.UUID) error {
	return m.send(ws.Envelope{Event: ws.EventJoinRoom, Data: ws.JoinRoomPayload{RoomID: roomID}})
}

// LeaveRoom detaches this connection from a room.
func (m *Manager) LeaveRoom(roomID uuid.UUID) error {
	return m.send(ws.Envelope{Event: ws.EventLeaveRoom, Data: ws.LeaveRoomPayload{RoomID: roomID}})
}

// SendMessage sends a chat message to a joined room.
func (m *Manager) SendMessage(roomID uuid.UUID, content string) error {
	return m.send(ws.Envelope{Event: ws.EventSendMessage, Data: ws.SendMessagePayload{RoomID: roomID, Content: content}})
}

// SetTyping reports this user's typing state in a room.
func (m *Manager) SetTyping(roomID uuid.UUID, isTyping bool) error {
	return m.send(ws.Envelope{Event: ws.EventTyping, Data: ws.TypingPayload{RoomID: roomID, IsTyping: isTyping}})
}

func (m *Manager) send(env ws.Envelope) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	m.wmu.Lock()
	defer m.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteJSON(env)
}
