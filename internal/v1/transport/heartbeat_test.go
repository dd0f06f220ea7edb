package transport

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerlink/signaling/internal/v1/config"
)

func TestHeartbeatSweep_PingsResponsiveClients(t *testing.T) {
	h := newTestHub()
	a, _ := admitTestClient(t, h)

	h.heartbeatSweep()

	assert.False(t, a.alive.Load(), "sweep arms the next round by clearing alive")
	select {
	case msg := <-a.send:
		assert.Equal(t, websocket.PingMessage, msg.messageType)
	default:
		t.Fatal("expected a queued ping")
	}

	_, ok := h.registry.Lookup(a.ID())
	assert.True(t, ok)
}

func TestHeartbeatSweep_EvictsUnresponsiveClient(t *testing.T) {
	h := newTestHub()
	a, _ := admitTestClient(t, h)
	b, _ := admitTestClient(t, h)
	joinAndDrain(t, h, "meeting", a, b)

	a.alive.Store(false)
	h.heartbeatSweep()

	_, ok := h.registry.Lookup(a.ID())
	assert.False(t, ok, "unresponsive client evicted")

	bFrames := decodeFrames(t, drainFrames(b))
	require.Contains(t, frameTypes(bFrames), "peer-left")
}

func TestReadPump_PongRestoresAlive(t *testing.T) {
	h := newTestHub()
	a, conn := admitTestClient(t, h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.readPump()
	}()

	require.Eventually(t, func() bool {
		return conn.PongHandler() != nil
	}, 2*time.Second, time.Millisecond)

	a.alive.Store(false)
	require.NoError(t, conn.PongHandler()(""))
	assert.True(t, a.alive.Load())

	conn.Close()
	<-done
}

func TestHeartbeat_EvictsAfterMissedPong(t *testing.T) {
	h := newTestHubWith(func(cfg *config.Config) {
		cfg.HeartbeatInterval = 5 * time.Millisecond
	})
	h.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	}()

	a, _ := admitTestClient(t, h)

	// No pong ever arrives: the first tick clears alive and pings, the next
	// tick evicts.
	require.Eventually(t, func() bool {
		_, ok := h.registry.Lookup(a.ID())
		return !ok
	}, 2*time.Second, time.Millisecond)
}
