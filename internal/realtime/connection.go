package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// maxFrameBytes bounds inbound client frames. Chat events are small;
	// document payloads travel over the snapshot HTTP surface instead.
	maxFrameBytes = 64 << 10
)

var errConnClosed = errors.New("connection closed")

// Conn wraps a websocket and coordinates outbound writes via a buffered
// channel. A Conn is uniquely identified and safe for concurrent use:
// Send and Close may race freely, from any goroutine.
type Conn struct {
	id string

	ws   *websocket.Conn
	send chan []byte

	// mu guards closed. The send channel is never closed; every send into
	// it happens under mu with closed still false, and the write loop
	// drains until done fires. Closing the channel instead would let a
	// concurrent Send panic.
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewConn constructs a Conn around an upgraded websocket.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, 128),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string {
	return c.id
}

// Start launches the write loop. It must be called exactly once per Conn.
func (c *Conn) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. Delivery is at-most-once with no
// retry. If the client is slow and the buffer is full, the connection is
// closed to keep backpressure bounded.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	select {
	case c.send <- payload:
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// ReadMessage blocks for the next inbound frame. The read deadline is
// refreshed on every frame and every pong.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	return payload, nil
}

// Close terminates the connection and stops the write loop. Idempotent.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = c.ws.Close()
}

func (c *Conn) writeLoop() {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
