package transport

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/peerlink/signaling/internal/v1/logging"
	"github.com/peerlink/signaling/internal/v1/metrics"
	"github.com/peerlink/signaling/internal/v1/protocol"
)

// dispatch handles one inbound frame from a client: rate limit, decode, then
// route. Runs on the sender's read goroutine; all deliveries go through the
// recipients' outbound queues, never directly to their transports.
func (h *Hub) dispatch(c *Client, messageType int, data []byte) {
	if !c.bucket.Allow() {
		metrics.RateLimitDrops.Inc()
		metrics.FramesDispatched.WithLabelValues("any", "rate-limited").Inc()
		h.deliver(c, protocol.Error(protocol.ErrMsgRateLimit))
		return
	}

	frame, outcome := protocol.Decode(data, h.cfg.MaxPayload)
	switch outcome {
	case protocol.OutcomeNotJSON:
		h.broadcastRaw(c, messageType, data)
	case protocol.OutcomeInvalid, protocol.OutcomeOversize:
		metrics.FramesDispatched.WithLabelValues("invalid", "rejected").Inc()
		h.deliver(c, protocol.Error(protocol.ErrMsgInvalidMessage))
	case protocol.OutcomeFrame:
		switch frame.Type {
		case protocol.TypeJoinRoom:
			h.handleJoin(c, frame.Room)
		case protocol.TypeLeaveRoom:
			h.handleLeave(c)
		default:
			h.handleRelay(c, frame)
		}
	}
}

// handleJoin moves the client into a room and emits the membership
// notifications in the documented order: room-joined to the joiner first,
// then peer-joined to existing members, then room-peers to the joiner.
func (h *Hub) handleJoin(c *Client, room string) {
	result, err := h.rooms.Join(c, room)
	if err != nil {
		metrics.FramesDispatched.WithLabelValues(protocol.TypeJoinRoom, "rejected").Inc()
		switch {
		case errors.Is(err, ErrInvalidRoomName):
			h.deliver(c, protocol.Error(protocol.ErrMsgInvalidRoomName))
		case errors.Is(err, ErrRoomFull):
			h.deliver(c, protocol.Error(protocol.ErrMsgRoomFull))
		}
		return
	}

	// Departure notifications for an implicit leave precede the arrival.
	for _, peer := range result.DepartedPeers {
		h.deliver(peer, protocol.PeerLeft(c.id))
	}

	h.deliver(c, protocol.RoomJoined(room))
	if !result.Rejoined {
		for _, peer := range result.Peers {
			h.deliver(peer, protocol.PeerJoined(c.id))
		}
	}

	peerIDs := make([]string, 0, len(result.Peers))
	for _, peer := range result.Peers {
		peerIDs = append(peerIDs, peer.id)
	}
	h.deliver(c, protocol.RoomPeers(peerIDs))

	metrics.FramesDispatched.WithLabelValues(protocol.TypeJoinRoom, "ok").Inc()
	logging.Info(context.Background(), "Client joined room",
		zap.String("clientId", c.id), zap.String("room", room))
}

// handleLeave removes the client from its room. A leave with no room is a
// silent no-op. peer-left goes to remaining members before room-left goes to
// the leaver.
func (h *Hub) handleLeave(c *Client) {
	room, remaining, ok := h.rooms.Leave(c)
	if !ok {
		return
	}

	for _, peer := range remaining {
		h.deliver(peer, protocol.PeerLeft(c.id))
	}
	h.deliver(c, protocol.RoomLeft(room))

	metrics.FramesDispatched.WithLabelValues(protocol.TypeLeaveRoom, "ok").Inc()
	logging.Info(context.Background(), "Client left room",
		zap.String("clientId", c.id), zap.String("room", room))
}

// handleRelay forwards an opaque frame. With a "to" field it goes to that
// target only if sender and target share a room; without one it fans out to
// the sender's room. The broker adds "from" and interprets nothing else.
func (h *Hub) handleRelay(c *Client, frame *protocol.Frame) {
	if frame.HasTo {
		target := h.rooms.ResolveSameRoom(c, frame.To)
		if target == nil {
			metrics.FramesDispatched.WithLabelValues("relay", "unroutable").Inc()
			h.deliver(c, protocol.ErrorTo(protocol.ErrMsgTargetUnavailable, frame.To))
			return
		}

		data, err := protocol.Relay(frame, c.id)
		if err != nil {
			h.deliver(c, protocol.Error(protocol.ErrMsgInvalidMessage))
			return
		}

		metrics.FramesDispatched.WithLabelValues("relay", "ok").Inc()
		h.deliver(target, data)
		return
	}

	// No target: fan out to the sender's room, no-op without one.
	others := h.rooms.Others(c)
	if others == nil {
		metrics.FramesDispatched.WithLabelValues("broadcast", "dropped").Inc()
		return
	}

	data, err := protocol.Relay(frame, c.id)
	if err != nil {
		h.deliver(c, protocol.Error(protocol.ErrMsgInvalidMessage))
		return
	}

	metrics.FramesDispatched.WithLabelValues("broadcast", "ok").Inc()
	for _, peer := range others {
		h.deliver(peer, data)
	}
}

// broadcastRaw forwards non-JSON bytes unmodified to the sender's room.
// Byte-level broadcast cannot carry an injected sender id. Dropped silently
// when the sender has no room.
func (h *Hub) broadcastRaw(c *Client, messageType int, data []byte) {
	others := h.rooms.Others(c)
	if others == nil {
		metrics.FramesDispatched.WithLabelValues("raw", "dropped").Inc()
		return
	}

	metrics.FramesDispatched.WithLabelValues("raw", "ok").Inc()
	for _, peer := range others {
		if !peer.SendRaw(messageType, data) {
			h.terminateSlow(peer)
		}
	}
}

// deliver enqueues a frame for a recipient. A recipient whose queue is full
// is terminated; the sender is never blocked or notified.
func (h *Hub) deliver(target *Client, data []byte) {
	if !target.Send(data) {
		h.terminateSlow(target)
	}
}

func (h *Hub) terminateSlow(target *Client) {
	logging.Warn(context.Background(), "Terminating slow consumer", zap.String("clientId", target.id))
	go h.Disconnect(target, closeSlowConsumer, "slow consumer")
}
