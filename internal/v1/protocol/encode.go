package protocol

import "encoding/json"

// Server frame builders. Every frame the broker originates is produced here
// so the wire shapes live in one place. Marshal of these structs cannot fail;
// errors are deliberately discarded.

type idFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type roomFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type roomPeersFrame struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

type peerFrame struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	To      string `json:"to,omitempty"`
}

// ID builds the frame sent exactly once after admission.
func ID(id string) []byte {
	data, _ := json.Marshal(idFrame{Type: TypeID, ID: id})
	return data
}

// RoomJoined confirms a successful join to the joiner.
func RoomJoined(room string) []byte {
	data, _ := json.Marshal(roomFrame{Type: TypeRoomJoined, Room: room})
	return data
}

// RoomLeft confirms a successful leave to the leaver.
func RoomLeft(room string) []byte {
	data, _ := json.Marshal(roomFrame{Type: TypeRoomLeft, Room: room})
	return data
}

// RoomPeers lists the joiner's new peers, excluding the joiner itself.
// An empty peer set encodes as [] rather than null.
func RoomPeers(peers []string) []byte {
	if peers == nil {
		peers = []string{}
	}
	data, _ := json.Marshal(roomPeersFrame{Type: TypeRoomPeers, Peers: peers})
	return data
}

// PeerJoined announces a new member to the rest of the room.
func PeerJoined(peerID string) []byte {
	data, _ := json.Marshal(peerFrame{Type: TypePeerJoined, PeerID: peerID})
	return data
}

// PeerLeft announces a departure to the rest of the room.
func PeerLeft(peerID string) []byte {
	data, _ := json.Marshal(peerFrame{Type: TypePeerLeft, PeerID: peerID})
	return data
}

// Error builds an error frame with a stable machine-readable message.
func Error(message string) []byte {
	data, _ := json.Marshal(errorFrame{Type: TypeError, Message: message})
	return data
}

// ErrorTo builds an error frame that echoes the unreachable target id.
func ErrorTo(message, to string) []byte {
	data, _ := json.Marshal(errorFrame{Type: TypeError, Message: message, To: to})
	return data
}
