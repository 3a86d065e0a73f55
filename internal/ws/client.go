package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat_server/internal/config"
	"chat_server/pkg/logger"
)

// Client wraps one upgraded websocket connection. The read pump
// processes inbound events strictly in order; the write pump drains
// the buffered send channel, keeping slow receivers from blocking
// broadcasts (per-connection FIFO is the ordering guarantee).
type Client struct {
	id       string
	userID   uuid.UUID
	username string

	conn  *websocket.Conn
	send  chan Envelope
	done  chan struct{}
	once  sync.Once
	hub   *Hub
	proto *Protocol
	cfg   config.ChatConfig
	log   logger.Logger
}

func NewClient(conn *websocket.Conn, userID uuid.UUID, username string, hub *Hub, proto *Protocol, cfg config.ChatConfig, log logger.Logger) *Client {
	return &Client{
		id:       uuid.NewString(),
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan Envelope, cfg.SendBufferSize),
		done:     make(chan struct{}),
		hub:      hub,
		proto:    proto,
		cfg:      cfg,
		log:      log,
	}
}

func (c *Client) ID() string          { return c.id }
func (c *Client) UserID() uuid.UUID   { return c.userID }
func (c *Client) Username() string    { return c.username }

// Deliver enqueues a frame without blocking. False means the frame was
// dropped: the connection is closing or its buffer is full.
func (c *Client) Deliver(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Run registers the client and pumps until the transport drops, then
// runs the disconnect-cleanup path exactly once.
func (c *Client) Run(ctx context.Context) {
	c.hub.AddConnection(c)

	go c.writePump()
	c.readPump(ctx)

	c.shutdown()
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.hub.DropConnection(c.id)
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(c.cfg.MaxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", "connection_id", c.id, "error", err)
			}
			return
		}

		var env InboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.Deliver(Envelope{Event: EventError, Data: ErrorPayload{Message: "malformed frame"}})
			continue
		}

		// One event at a time: the next frame is not read until this
		// one ran to completion (success or localized rejection).
		c.proto.HandleEvent(ctx, c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
