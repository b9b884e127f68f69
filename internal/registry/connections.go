package registry

import (
	"fmt"
	"sync"
)

// GuestPrefix is prepended to the first characters of a connection id to
// build the display name of a connection that has not registered yet.
const GuestPrefix = "Guest "

// UnknownDevice is the device label used when the transport supplies no
// address for a connection.
const UnknownDevice = "Unknown device"

// Identity is the public profile attached to a live connection.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Device string `json:"deviceName"`
}

// DefaultIdentity builds the provisional identity a connection carries from
// the moment it is accepted until it registers.
func DefaultIdentity(id, addr string) Identity {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	device := addr
	if device == "" {
		device = UnknownDevice
	}
	return Identity{
		ID:     id,
		Name:   GuestPrefix + short,
		Device: device,
	}
}

type connEntry struct {
	current  Identity
	defaults Identity
}

// Connections maps live connection ids to their identities and remembers the
// order in which connections arrived.
type Connections struct {
	mu      sync.RWMutex
	entries map[string]*connEntry
	order   []string
}

// NewConnections creates an empty connection registry.
func NewConnections() *Connections {
	return &Connections{
		entries: make(map[string]*connEntry),
	}
}

// OnConnect inserts the default identity for a freshly accepted connection.
func (c *Connections) OnConnect(id string, def Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; exists {
		return fmt.Errorf("connect %s: %w", id, ErrDuplicateConnection)
	}

	def.ID = id
	c.entries[id] = &connEntry{current: def, defaults: def}
	c.order = append(c.order, id)
	return nil
}

// Register overwrites the name and device of an existing connection. An empty
// argument falls back to the default captured when the connection was
// accepted.
func (c *Connections) Register(id, name, device string) (Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists {
		return Identity{}, fmt.Errorf("register %s: %w", id, ErrUnknownConnection)
	}

	if name == "" {
		name = entry.defaults.Name
	}
	if device == "" {
		device = entry.defaults.Device
	}
	entry.current = Identity{ID: id, Name: name, Device: device}
	return entry.current, nil
}

// Get returns the current identity of a connection.
func (c *Connections) Get(id string) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[id]
	if !exists {
		return Identity{}, false
	}
	return entry.current, true
}

// All returns a snapshot of every live identity in connect order.
func (c *Connections) All() []Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Identity, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].current)
	}
	return out
}

// Remove deletes a connection and returns the identity it held. Removing an
// id twice is a no-op.
func (c *Connections) Remove(id string) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists {
		return Identity{}, false
	}

	delete(c.entries, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return entry.current, true
}

// Len reports the number of live connections.
func (c *Connections) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
