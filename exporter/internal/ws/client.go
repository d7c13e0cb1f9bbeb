package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// queueDepth is how many messages a client may lag behind before the hub
	// drops it.
	queueDepth = 16

	maxInboundBytes = 512
)

// client is one WebSocket connection. Its queue is never closed; done ends
// the writer instead, so the hub can enqueue without holding a lock.
type client struct {
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:  conn,
		queue: make(chan []byte, queueDepth),
		done:  make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the client is
// too far behind.
func (c *client) enqueue(msg []byte) bool {
	select {
	case c.queue <- msg:
		return true
	default:
		return false
	}
}

// close asks the writer to send a close frame and hang up. Idempotent.
func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) remoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// writeLoop forwards queued messages and keeps the connection alive with
// pings until close is called or a write fails.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck
			return
		case msg := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames so pongs and close frames are processed.
// It returns when the peer goes away or stops answering pings.
func (c *client) readLoop() {
	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
