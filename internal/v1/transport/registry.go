package transport

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrOverloaded is returned when the global client cap is reached.
var ErrOverloaded = errors.New("overloaded")

// Registry assigns ids to admitted clients and enforces the global client
// cap. It holds non-owning references; each client record is owned by its
// connection handler.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	maxClients int
}

// NewRegistry creates a registry with the given global client cap.
func NewRegistry(maxClients int) *Registry {
	return &Registry{
		clients:    make(map[string]*Client),
		maxClients: maxClients,
	}
}

// Admit generates a fresh id for the client and inserts it, or rejects with
// ErrOverloaded at capacity. The id is valid for lookups before the caller
// sends the id frame.
func (r *Registry) Admit(c *Client) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.maxClients {
		return "", ErrOverloaded
	}

	id := uuid.NewString()
	c.id = id
	r.clients[id] = c
	return id, nil
}

// Lookup returns the client record for an id, if present.
func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Remove deletes a client from the registry. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Len returns the current number of admitted clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// AtCapacity reports whether the global cap is reached.
func (r *Registry) AtCapacity() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients) >= r.maxClients
}

// Snapshot returns the current client records. The slice is a copy; the
// records themselves are shared.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// IDs returns the ids of all admitted clients.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}
