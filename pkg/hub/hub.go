package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sptcnl/momo/internal/log"
)

// Hub maintains the set of active clients and broadcasts messages to them.
// Only Run touches the client set.
type Hub struct {
	name   string
	logger *slog.Logger

	clients map[*Client]bool

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex // guards count
	count   int
	welcome func() []Message
}

// New creates a new Hub
func New(name string) *Hub {
	return &Hub{
		name:       name,
		logger:     log.Component("hub").With("hub", name),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// WithLogger replaces the hub's logger.
func (h *Hub) WithLogger(l *slog.Logger) *Hub {
	if l != nil {
		h.logger = l
	}
	return h
}

// OnConnect sets a function producing the messages every new client gets
// first, such as the current status.
func (h *Hub) OnConnect(fn func() []Message) {
	h.mu.Lock()
	h.welcome = fn
	h.mu.Unlock()
}

// Run starts the hub's main loop and blocks until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.logger.Debug("client connected", "clients", len(h.clients))
			for _, msg := range h.greeting() {
				h.deliver(client, msg)
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.setCount(len(h.clients))
			h.logger.Debug("client disconnected", "clients", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				h.deliver(client, message)
			}
		}
	}
}

// deliver queues msg for client, dropping the client if it is too slow.
func (h *Hub) deliver(client *Client, msg Message) {
	select {
	case client.send <- msg:
	default:
		close(client.send)
		delete(h.clients, client)
		h.setCount(len(h.clients))
		h.logger.Warn("dropped slow client")
	}
}

func (h *Hub) greeting() []Message {
	h.mu.RLock()
	fn := h.welcome
	h.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.setCount(0)
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients. It never blocks; when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// Publish encodes an event and broadcasts it.
func (h *Hub) Publish(typ string, data any) error {
	msg, err := Encode(typ, data)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// join registers c unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c unless the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
