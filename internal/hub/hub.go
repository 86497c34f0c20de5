package hub

import (
	"context"
	"log/slog"
	"sync"

	"flightmap/internal/store"
)

// Client is one connected viewer. Send carries encoded messages for the
// connection; Reload is signalled when a new snapshot is installed.
type Client struct {
	ID     string
	Send   chan []byte
	Reload chan *store.Snapshot

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan []byte, bufferSize),
		Reload: make(chan *store.Snapshot, 1),
	}
}

// Enqueue queues data for the connection without blocking. It returns false
// when the buffer is full or the client is gone.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// notify hands snap to the client, replacing a notice it has not picked up
// yet. Only the newest snapshot matters.
func (c *Client) notify(snap *store.Snapshot) {
	for {
		select {
		case c.Reload <- snap:
			return
		default:
		}
		select {
		case <-c.Reload:
		default:
		}
	}
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	replaced   chan *store.Snapshot

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		replaced:   make(chan *store.Snapshot, 1),
		logger:     logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case snap := <-h.replaced:
			h.fanout(snap)
		}
	}
}

// SnapshotReplaced queues a notice for every client. A notice still queued
// when the next one arrives is superseded.
func (h *Hub) SnapshotReplaced(snap *store.Snapshot) {
	for {
		select {
		case h.replaced <- snap:
			return
		default:
		}
		select {
		case old := <-h.replaced:
			h.logger.Debug("superseded snapshot notice", "version", old.Version)
		default:
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(snap *store.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.notify(snap)
	}
	h.logger.Debug("snapshot fanned out", "version", snap.Version, "clients", len(h.clients))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
}
