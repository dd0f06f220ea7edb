// Package protocol implements the JSON control-frame codec spoken between
// clients and the broker. Relayed payloads (offers, answers, ICE candidates)
// are opaque: the codec only interprets the routing fields "type" and "to".
package protocol

import (
	"bytes"
	"encoding/json"
)

// Client-to-server frame types with broker-side semantics. Any other type is
// relayed opaquely.
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"
)

// Server-to-client frame types.
const (
	TypeID         = "id"
	TypeRoomJoined = "room-joined"
	TypeRoomLeft   = "room-left"
	TypeRoomPeers  = "room-peers"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeError      = "error"
)

// Stable machine-readable error messages carried in error frames.
const (
	ErrMsgInvalidMessage    = "invalid-message"
	ErrMsgInvalidRoomName   = "invalid-room-name"
	ErrMsgRoomFull          = "room-full"
	ErrMsgRateLimit         = "rate-limit"
	ErrMsgTargetUnavailable = "target-unavailable-or-different-room"
)

// Outcome is the tagged result of decoding one inbound frame.
type Outcome int

const (
	// OutcomeFrame means the bytes decoded to a well-formed control frame.
	OutcomeFrame Outcome = iota
	// OutcomeNotJSON means the bytes are not JSON at all. The dispatcher
	// treats them as an opaque room broadcast when the sender is in a room.
	OutcomeNotJSON
	// OutcomeInvalid means the bytes are JSON but violate the protocol:
	// non-object root, reserved keys, or a missing/non-string "type".
	OutcomeInvalid
	// OutcomeOversize means the frame exceeds the payload cap. Enforced
	// before any parsing.
	OutcomeOversize
)

// reservedKeys are rejected on every frame root to keep relayed objects from
// shadowing prototype properties in browser clients.
var reservedKeys = [...]string{"__proto__", "constructor", "prototype"}

// Frame is one decoded inbound control frame. Fields holds every top-level
// property verbatim so relays preserve the payload byte-for-byte.
type Frame struct {
	Type   string
	To     string
	HasTo  bool
	Room   string
	Fields map[string]json.RawMessage
}

// Decode parses one inbound frame. The length bound is checked first so
// oversize input is never parsed.
func Decode(data []byte, maxPayload int64) (*Frame, Outcome) {
	if int64(len(data)) > maxPayload {
		return nil, OutcomeOversize
	}

	if !json.Valid(data) {
		return nil, OutcomeNotJSON
	}

	// Valid JSON with a non-object root is a protocol error, not passthrough.
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, OutcomeInvalid
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, OutcomeInvalid
	}

	for _, key := range reservedKeys {
		if _, ok := fields[key]; ok {
			return nil, OutcomeInvalid
		}
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, OutcomeInvalid
	}

	frame := &Frame{Fields: fields}
	if err := json.Unmarshal(rawType, &frame.Type); err != nil {
		return nil, OutcomeInvalid
	}

	if rawTo, ok := fields["to"]; ok {
		if err := json.Unmarshal(rawTo, &frame.To); err != nil {
			return nil, OutcomeInvalid
		}
		frame.HasTo = true
	}

	if rawRoom, ok := fields["room"]; ok {
		// A non-string room is left empty and fails name validation later.
		_ = json.Unmarshal(rawRoom, &frame.Room)
	}

	return frame, OutcomeFrame
}

// Relay re-encodes a decoded frame with the sender's id added as "from".
// All original fields are preserved; only "from" is overwritten.
func Relay(f *Frame, from string) ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(f.Fields)+1)
	for k, v := range f.Fields {
		fields[k] = v
	}
	fromRaw, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	fields["from"] = fromRaw
	return json.Marshal(fields)
}
