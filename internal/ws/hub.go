package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is one websocket connection to a dashboard.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Events queued for this connection; drained by WritePump.
	send chan WsEvent
}

// Hub keeps the active clients and fans events out to them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan WsEvent
	done       chan struct{}

	mu  sync.RWMutex
	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan WsEvent, 256),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Run must be started in its own goroutine; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					// slow consumer, drop it
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish implements RealtimePublisher. It never blocks: when the broadcast
// buffer is full the event is dropped and logged.
func (h *Hub) Publish(event WsEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn().Str("event", event.Event).Msg("broadcast buffer full, event dropped")
	}
}

// ClientCount is used by the health endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RealtimePublisher is what the service layer holds, so it does not depend
// on the Hub directly.
type RealtimePublisher interface {
	Publish(event WsEvent)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(WsEvent) {}

// Fanout hands every event to each publisher in order.
type Fanout []RealtimePublisher

func (f Fanout) Publish(event WsEvent) {
	for _, p := range f {
		p.Publish(event)
	}
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan WsEvent, 256),
	}
}

// WritePump sends queued events to the connection until the hub closes the
// send channel or a write fails.
func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for event := range c.send {
		payload, err := json.Marshal(event)
		if err != nil {
			c.hub.log.Error().Err(err).Msg("marshal event")
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.hub.log.Debug().Err(err).Msg("write message")
			c.hub.Unregister(c)
			return
		}
	}
}

// ReadPump only consumes control frames and detects closed connections.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.log.Debug().Err(err).Msg("read message")
			return
		}
	}
}
