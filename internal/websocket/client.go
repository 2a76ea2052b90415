package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBufferSize = 256
)

var (
	ErrClientDisconnected = errors.New("client disconnected")
	ErrSendBufferFull     = errors.New("send buffer full")
)

// Client is one accepted WebSocket connection. Reads run on readPump and all
// writes are serialized on writePump.
type Client struct {
	handle   Handle
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	authUser string

	ctx    context.Context
	cancel context.CancelFunc
	closed int32
}

func newClient(hub *Hub, conn *websocket.Conn, authUser string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		authUser: authUser,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) Handle() Handle {
	return c.handle
}

func (c *Client) AuthenticatedUser() (string, bool) {
	return c.authUser, c.authUser != ""
}

func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Send queues one frame. A client that cannot keep up is closed rather than
// allowed to block the sender.
func (c *Client) Send(payload []byte) error {
	if c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.ctx.Done():
		return ErrClientDisconnected
	default:
		c.hub.logger.Warn("Send buffer full, closing client", "clientID", c.handle)
		c.Close()
		return ErrSendBufferFull
	}
}

// Close asks writePump to send a close frame and tear the connection down.
// It is safe to call more than once and from any goroutine.
func (c *Client) Close() error {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
	}
	return nil
}

func (c *Client) readPump() {
	defer func() {
		c.hub.registry.Unregister(c.handle)
		c.Close()
		c.conn.Close()
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Warn("WebSocket error", "clientID", c.handle, "error", err)
			} else {
				c.hub.logger.Debug("WebSocket connection closed", "clientID", c.handle, "error", err)
			}
			return
		}
		c.hub.dispatcher.HandleMessage(c.handle, message)
	}
}

// writePump sends one JSON document per text frame and keeps the peer alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Error writing message", "clientID", c.handle, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("Error sending ping", "clientID", c.handle, "error", err)
				c.Close()
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
