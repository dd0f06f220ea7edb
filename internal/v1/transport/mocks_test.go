package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/peerlink/signaling/internal/v1/config"
)

// recordedWrite is one message the broker wrote to a mock connection.
type recordedWrite struct {
	messageType int
	data        []byte
}

type readResult struct {
	messageType int
	data        []byte
}

// MockConnection implements wsConnection with scripted reads and recorded
// writes. ReadMessage blocks until a message is injected or the connection
// is closed, mirroring a real socket.
type MockConnection struct {
	mu          sync.Mutex
	writes      []recordedWrite
	failWrites  bool
	readLimit   int64
	pongHandler func(string) error

	readCh    chan readResult
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		readCh: make(chan readResult, 32),
		closed: make(chan struct{}),
	}
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-m.readCh:
		return msg.messageType, msg.data, nil
	case <-m.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.New("write failed")
	}
	m.writes = append(m.writes, recordedWrite{messageType: messageType, data: append([]byte(nil), data...)})
	return nil
}

func (m *MockConnection) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MockConnection) SetWriteDeadline(time.Time) error { return nil }

func (m *MockConnection) SetReadLimit(limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readLimit = limit
}

func (m *MockConnection) SetPongHandler(h func(string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pongHandler = h
}

// InjectText feeds one inbound text frame to the read loop.
func (m *MockConnection) InjectText(data string) {
	m.readCh <- readResult{messageType: websocket.TextMessage, data: []byte(data)}
}

// Writes returns a copy of everything written so far.
func (m *MockConnection) Writes() []recordedWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedWrite(nil), m.writes...)
}

// WaitForWrites polls until at least n messages were written or the timeout
// expires.
func (m *MockConnection) WaitForWrites(t *testing.T, n int) []recordedWrite {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if writes := m.Writes(); len(writes) >= n {
			return writes
		}
		time.Sleep(time.Millisecond)
	}
	writes := m.Writes()
	require.GreaterOrEqual(t, len(writes), n, "timed out waiting for writes")
	return writes
}

// IsClosed reports whether Close was called.
func (m *MockConnection) IsClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// PongHandler returns the handler the read pump registered.
func (m *MockConnection) PongHandler() func(string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pongHandler
}

// --- shared test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Host:              "127.0.0.1",
		Port:              "0",
		MaxPayload:        65536,
		MaxClients:        1000,
		MaxRoomClients:    50,
		MessageRatePerSec: 1000,
		MessageBurst:      1000,
		HeartbeatInterval: time.Minute,
	}
}

func newTestHub() *Hub {
	return NewHub(testConfig(), nil)
}

// admitTestClient registers a client without starting its pumps, so tests
// can drive dispatch synchronously and inspect the outbound queue directly.
func admitTestClient(t *testing.T, h *Hub) (*Client, *MockConnection) {
	t.Helper()
	conn := NewMockConnection()
	c := newClient(conn, h)
	_, err := h.registry.Admit(c)
	require.NoError(t, err)
	c.alive.Store(true)
	return c, conn
}

// drainFrames empties a client's outbound queue and returns the data frames.
func drainFrames(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return frames
			}
			if msg.messageType == websocket.TextMessage || msg.messageType == websocket.BinaryMessage {
				frames = append(frames, msg.data)
			}
		default:
			return frames
		}
	}
}

// decodeFrames parses drained frames as JSON objects.
func decodeFrames(t *testing.T, frames [][]byte) []map[string]any {
	t.Helper()
	decoded := make([]map[string]any, 0, len(frames))
	for _, frame := range frames {
		var obj map[string]any
		require.NoError(t, json.Unmarshal(frame, &obj))
		decoded = append(decoded, obj)
	}
	return decoded
}

// frameTypes extracts the type field of each decoded frame, in order.
func frameTypes(frames []map[string]any) []string {
	types := make([]string, 0, len(frames))
	for _, frame := range frames {
		if s, ok := frame["type"].(string); ok {
			types = append(types, s)
		}
	}
	return types
}

// closeCode extracts the status code from a recorded close frame payload.
func closeCode(t *testing.T, write recordedWrite) int {
	t.Helper()
	require.Equal(t, websocket.CloseMessage, write.messageType)
	require.GreaterOrEqual(t, len(write.data), 2)
	return int(binary.BigEndian.Uint16(write.data[:2]))
}
