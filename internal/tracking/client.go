package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
)

// Client is one live tracking connection with its authenticated identity
// attached for the lifetime of the socket.
type Client struct {
	conn     *websocket.Conn
	send     chan Frame
	userID   uuid.UUID
	role     enums.Role
	remoteIP string

	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, userID uuid.UUID, role enums.Role, remoteIP string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Client{
		conn:     conn,
		send:     make(chan Frame, sendBuffer),
		userID:   userID,
		role:     role,
		remoteIP: remoteIP,
		done:     make(chan struct{}),
	}
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// RemoteIP returns the peer address captured at handshake time.
func (c *Client) RemoteIP() string {
	return c.remoteIP
}

// Role returns the authenticated role behind the connection.
func (c *Client) Role() enums.Role {
	return c.role
}

// trySend queues a frame without blocking. A full buffer means the consumer
// is too slow; the frame is dropped for this connection only.
func (c *Client) trySend(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump consumes client frames until the socket dies, handing each one to
// the gateway dispatcher.
func (c *Client) readPump(ctx context.Context, g *Gateway) {
	defer g.disconnect(ctx, c)

	c.conn.SetReadLimit(g.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.cfg.PongTimeout))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		g.dispatch(ctx, c, frame)
	}
}

// writePump serializes all outbound traffic for the connection and keeps the
// socket alive with periodic pings.
func (c *Client) writePump(g *Gateway) {
	pingInterval := g.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() { close(c.done) })
}
