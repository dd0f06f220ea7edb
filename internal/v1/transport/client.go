package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/peerlink/signaling/internal/v1/logging"
)

// wsConnection defines the WebSocket operations the broker needs, so tests
// can substitute a scripted connection.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

const (
	// sendQueueSize bounds each client's outbound queue. A consumer that
	// falls this far behind is terminated rather than allowed to
	// back-pressure the dispatcher.
	sendQueueSize = 64

	// writeWait is the per-write deadline on the transport.
	writeWait = 10 * time.Second
)

// outbound is one queued write: a data frame, a ping, or nothing more to say.
type outbound struct {
	messageType int
	data        []byte
}

// Client represents one connected peer. The record is owned by its
// connection handler; the registry and room index hold shared, non-owning
// references. The write pump is the only goroutine that touches the
// transport's write side.
type Client struct {
	id     string
	conn   wsConnection
	hub    *Hub
	bucket *rate.Limiter

	// alive is set on admission and on each pong, cleared by each
	// heartbeat tick.
	alive atomic.Bool

	mu         sync.Mutex
	room       string
	closed     bool
	closeFrame []byte

	detachOnce sync.Once
	send       chan outbound
}

func newClient(conn wsConnection, hub *Hub) *Client {
	return &Client{
		conn:   conn,
		hub:    hub,
		bucket: rate.NewLimiter(rate.Limit(hub.cfg.MessageRatePerSec), hub.cfg.MessageBurst),
		send:   make(chan outbound, sendQueueSize),
	}
}

// ID returns the server-assigned client id.
func (c *Client) ID() string {
	return c.id
}

// Room returns the client's current room name, or "" when unset.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// setRoom is called by the room index while it holds its own lock, so the
// room field and the index never disagree at a quiescent point.
func (c *Client) setRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

// Send enqueues a text frame on the client's outbound queue. Returns false
// when the queue is full: the caller terminates the slow consumer. Sends to
// an already-closed client are skipped and report success.
func (c *Client) Send(data []byte) bool {
	return c.enqueue(websocket.TextMessage, data)
}

// SendRaw enqueues pre-serialized bytes preserving the original transport
// message type. Used for the non-JSON passthrough broadcast.
func (c *Client) SendRaw(messageType int, data []byte) bool {
	return c.enqueue(messageType, data)
}

// Ping enqueues a transport-level ping through the write pump, keeping all
// writes on one goroutine.
func (c *Client) Ping() bool {
	return c.enqueue(websocket.PingMessage, nil)
}

func (c *Client) enqueue(messageType int, data []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logging.GetLogger().Debug("Skipping send to closed client", zap.String("clientId", c.id))
		return true
	}
	c.mu.Unlock()

	// Safety net: shutdown may close the channel between the check above
	// and the send below.
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send to closing client", zap.String("clientId", c.id), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- outbound{messageType: messageType, data: data}:
		return true
	default:
		logging.Warn(context.Background(), "Client send queue full", zap.String("clientId", c.id))
		return false
	}
}

// shutdown closes the outbound queue so the write pump drains, emits the
// close frame, and closes the connection. Idempotent.
func (c *Client) shutdown(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeFrame = websocket.FormatCloseMessage(code, reason)
	c.mu.Unlock()

	close(c.send)
}

// readPump reads inbound frames and hands them to the dispatcher. It owns
// the client's lifecycle end: on any read error the client is detached from
// the registry and its room, and the connection is closed.
func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c, websocket.CloseNormalClosure, "")
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxPayload)
	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		c.hub.dispatch(c, messageType, data)
	}
}

// writePump consumes the outbound queue. Frames from one sender to this
// client leave in enqueue order; nothing else writes to the transport.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(message.messageType, message.data); err != nil {
			logging.Error(context.Background(), "error writing message", zap.String("clientId", c.id), zap.Error(err))
			return
		}
	}

	// Queue closed: say goodbye with the recorded close code.
	c.mu.Lock()
	closeFrame := c.closeFrame
	c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, closeFrame)
}
