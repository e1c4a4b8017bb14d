package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jodete-online/jodete-server/internal/protocol"
)

const (
	writeWait = 10 * time.Second

	// Read deadline; refreshed on every pong.
	pongWait = 60 * time.Second

	// Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096

	sendBufferSize = 256
)

// Client is one websocket connection.
type Client struct {
	id     string
	name   string
	userID string

	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

// NewClient wraps an upgraded connection. An empty name gets a random
// nickname.
func NewClient(s *Server, conn *websocket.Conn, name, userID string) *Client {
	if name == "" {
		name = GenerateNickname()
	}
	return &Client{
		id:     uuid.NewString(),
		name:   name,
		userID: userID,
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
}

func (c *Client) ConnID() string      { return c.id }
func (c *Client) DisplayName() string { return c.name }
func (c *Client) UserID() string      { return c.userID }

// ReadPump reads frames until the connection dies, then reports the
// disconnect.
func (c *Client) ReadPump() {
	defer func() {
		c.handleDisconnect()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("conn", c.id).Debugf("read error: %v", err)
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			log.WithField("conn", c.id).Debugf("decode error: %v", err)
			c.SendMessage(protocol.MustNewMessage(protocol.MsgActionError, protocol.ActionErrorPayload{
				Code:    protocol.ErrCodeInvalidMsg,
				Message: "Mensaje inválido",
			}))
			continue
		}
		c.handle(msg)
	}
}

// handle isolates handler panics so one bad frame cannot take down the
// read loop.
func (c *Client) handle(msg *protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"conn": c.id, "type": msg.Type}).
				Errorf("panic handling message: %v", r)
			c.SendMessage(protocol.MustNewMessage(protocol.MsgActionError, protocol.ActionErrorPayload{
				Code:    protocol.ErrCodeUnknown,
				Message: protocol.ErrUnknown.Message,
			}))
		}
	}()
	c.server.handler.Handle(c, msg)
}

// WritePump flushes the send buffer and keeps the connection alive with
// pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a frame without blocking. A full buffer means the
// client stopped reading, so the connection is dropped.
func (c *Client) SendMessage(msg *protocol.Message) {
	data, err := msg.Encode()
	if err != nil {
		log.WithField("conn", c.id).Errorf("encode error: %v", err)
		return
	}

	// The mutex covers the closed check and the channel send together so
	// a concurrent Close cannot close the channel between them.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.WithField("conn", c.id).Warn("send buffer full, closing connection")
		c.closed = true
		close(c.send)
	}
}

// Close shuts the outbound channel once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) handleDisconnect() {
	c.server.rooms.HandleDisconnect(c.id)
	c.server.unregisterClient(c)
}
