// Package server coordinates client registration, frame delivery, and
// connection cleanup for the LAN chat WebSocket system via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub owns the live WebSocket clients keyed by connection id. It serializes
// accepts and disconnects through its Run loop, hands those to the
// Lifecycle, and implements router.Dispatcher for outbound frames.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	lifecycle  *Lifecycle
	sendBuffer int
	logger     *slog.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance. The lifecycle must be
// attached before Run is called.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sendBuffer: sendBufferSize,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// ClientCount returns the number of clients currently attached to the hub.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Deliver queues frame for the client with the given id. It never blocks: a
// client whose send buffer is full is evicted and the frame is dropped.
func (h *Hub) Deliver(connID string, frame []byte) bool {
	h.mutex.RLock()
	client, ok := h.clients[connID]
	h.mutex.RUnlock()
	if !ok {
		return false
	}

	if h.safeSend(client, frame) {
		return true
	}

	h.evict(client)
	return false
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic in safeSend", "panic", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	current, exists := h.clients[client.id]
	if !exists || current != client || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// evict closes the socket of a client that cannot keep up. The read pump then
// fails and the client leaves through the normal unregister path.
func (h *Hub) evict(client *Client) {
	h.mutex.RLock()
	_, exists := h.clients[client.id]
	closed := client.closed
	h.mutex.RUnlock()
	if !exists || closed {
		return
	}

	h.logger.Warn("Evicting client with full send buffer", "connID", client.id, "addr", client.addr)
	client.closeConnection()
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	if _, dup := h.clients[client.id]; dup {
		h.mutex.Unlock()
		h.logger.Error("Duplicate connection id from transport", "connID", client.id, "addr", client.addr)
		client.closeConnection()
		return
	}
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if err := h.lifecycle.Accept(client.id, client.addr); err != nil {
		h.detach(client)
		client.closeConnection()
		return
	}
	h.logger.Info("Client registered", "connID", client.id, "addr", client.addr, "clients", clientCount)

	if client.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	if client == nil || !h.detach(client) {
		return
	}
	h.lifecycle.Disconnect(client.id)
	h.logger.Info("Client unregistered", "connID", client.id, "addr", client.addr, "clients", h.ClientCount())
}

// detach removes the client from the hub and closes its send channel. It
// reports whether the client was attached.
func (h *Hub) detach(client *Client) bool {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client.id)
	client.closed = true
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	return true
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	h.logger.Info("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		client.closeConnection()
	}

	h.logger.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for the Run loop
// and all client goroutines to finish. If they have not finished within
// timeout, including when Run was never started, it returns
// context.DeadlineExceeded.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown...")

	h.cancel()

	done := make(chan struct{})
	go func() {
		<-h.done
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
