package transport

import (
	"errors"
	"regexp"
	"sync"

	"github.com/peerlink/signaling/internal/v1/metrics"
)

var (
	// ErrInvalidRoomName is returned for names outside ^[A-Za-z0-9_-]{1,64}$.
	ErrInvalidRoomName = errors.New("invalid-room-name")
	// ErrRoomFull is returned when the target room is at its member cap.
	ErrRoomFull = errors.New("room-full")
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidRoomName reports whether a room name is acceptable.
func ValidRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// Rooms maps room names to member sets. Rooms are created lazily on first
// join and deleted the instant the last member leaves. All operations are
// atomic with respect to each other; the compound leave-then-join inside Join
// never exposes a state where a client is in two rooms.
type Rooms struct {
	mu         sync.Mutex
	rooms      map[string]map[string]*Client
	maxPerRoom int
}

// NewRooms creates a room index with the given per-room member cap.
func NewRooms(maxPerRoom int) *Rooms {
	return &Rooms{
		rooms:      make(map[string]map[string]*Client),
		maxPerRoom: maxPerRoom,
	}
}

// JoinResult describes the membership changes of one Join call, so the
// dispatcher can emit every notification for the atomic operation.
type JoinResult struct {
	// Peers are the members of the joined room, excluding the joiner.
	Peers []*Client
	// Rejoined is set when the client was already in the target room:
	// membership is untouched and no peer-joined is owed.
	Rejoined bool
	// Departed names the previous room left as part of this join, if any.
	Departed string
	// DepartedPeers are the members remaining in the departed room.
	DepartedPeers []*Client
}

// Join validates the room name and moves the client into the room, leaving
// its previous room first. Rejects with ErrRoomFull when the target is at
// cap; the client then stays in its previous room (or none).
func (rm *Rooms) Join(c *Client, name string) (*JoinResult, error) {
	if !ValidRoomName(name) {
		return nil, ErrInvalidRoomName
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	result := &JoinResult{}

	current := c.Room()
	if current == name {
		result.Peers = rm.othersLocked(name, c.id)
		result.Rejoined = true
		return result, nil
	}

	members := rm.rooms[name]
	if len(members) >= rm.maxPerRoom {
		return nil, ErrRoomFull
	}

	if current != "" {
		result.Departed = current
		result.DepartedPeers = rm.leaveLocked(c, current)
	}

	if members == nil {
		members = make(map[string]*Client)
		rm.rooms[name] = members
		metrics.ActiveRooms.Inc()
	}
	members[c.id] = c
	c.setRoom(name)

	result.Peers = rm.othersLocked(name, c.id)
	return result, nil
}

// Leave removes the client from its room, if any. Returns the room name and
// the remaining members. The room entry is deleted in the same step that
// removes the last member.
func (rm *Rooms) Leave(c *Client) (string, []*Client, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	current := c.Room()
	if current == "" {
		return "", nil, false
	}

	remaining := rm.leaveLocked(c, current)
	return current, remaining, true
}

// leaveLocked detaches the client from the named room and returns the
// remaining members. Deletes the room when it empties.
func (rm *Rooms) leaveLocked(c *Client, name string) []*Client {
	members, ok := rm.rooms[name]
	if !ok {
		c.setRoom("")
		return nil
	}

	delete(members, c.id)
	c.setRoom("")

	if len(members) == 0 {
		delete(rm.rooms, name)
		metrics.ActiveRooms.Dec()
		return nil
	}

	return rm.othersLocked(name, c.id)
}

// Others returns the members sharing the client's room, excluding the client.
// Nil when the client is in no room.
func (rm *Rooms) Others(c *Client) []*Client {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room := c.Room()
	if room == "" {
		return nil
	}
	return rm.othersLocked(room, c.id)
}

// ResolveSameRoom returns the target client only if the sender and target
// share a non-unset room. An empty target id never resolves.
func (rm *Rooms) ResolveSameRoom(sender *Client, targetID string) *Client {
	if targetID == "" {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	room := sender.Room()
	if room == "" {
		return nil
	}

	members, ok := rm.rooms[room]
	if !ok {
		return nil
	}
	return members[targetID]
}

// Peers returns the member ids of a room.
func (rm *Rooms) Peers(name string) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	ids := make([]string, 0, len(rm.rooms[name]))
	for id := range rm.rooms[name] {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of non-empty rooms.
func (rm *Rooms) Count() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.rooms)
}

// Snapshot returns room name to member ids, for the status endpoint.
func (rm *Rooms) Snapshot() map[string][]string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	snapshot := make(map[string][]string, len(rm.rooms))
	for name, members := range rm.rooms {
		ids := make([]string, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		snapshot[name] = ids
	}
	return snapshot
}

func (rm *Rooms) othersLocked(name, excludeID string) []*Client {
	members := rm.rooms[name]
	others := make([]*Client, 0, len(members))
	for id, member := range members {
		if id != excludeID {
			others = append(others, member)
		}
	}
	return others
}
