package realtime

import (
	"context"
	"sync"

	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/utils"

	"go.uber.org/zap"
)

const sendBuffer = 64

// Client is one live connection. A client belongs to at most one village
// room at a time.
type Client struct {
	ID      string
	UID     string
	Send    chan []byte
	village string
}

type joinRequest struct {
	client  *Client
	village string
}

type broadcastMsg struct {
	village string
	data    []byte
}

// Hub routes reservation updates to the clients of each village.
type Hub struct {
	log *zap.Logger

	mu      sync.RWMutex
	rooms   map[string]map[*Client]bool
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	broadcast  chan broadcastMsg
	done       chan struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		broadcast:  make(chan broadcastMsg, 256),
		done:       make(chan struct{}),
	}
}

// Run owns room membership until ctx ends; then every client is released.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.Send)
			}
			h.clients = map[*Client]bool{}
			h.rooms = map[string]map[*Client]bool{}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case j := <-h.join:
			h.mu.Lock()
			if h.clients[j.client] {
				h.leave(j.client)
				if h.rooms[j.village] == nil {
					h.rooms[j.village] = make(map[*Client]bool)
				}
				h.rooms[j.village][j.client] = true
				j.client.village = j.village
			}
			h.mu.Unlock()
			h.log.Debug("client joined village", zap.String("client", j.client.ID), zap.String("village", j.village))

		case m := <-h.broadcast:
			h.mu.Lock()
			for c := range h.rooms[m.village] {
				select {
				case c.Send <- m.data:
				default:
					h.log.Warn("dropping slow client", zap.String("client", c.ID), zap.String("village", m.village))
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// leave and drop expect h.mu held.
func (h *Hub) leave(c *Client) {
	if c.village == "" {
		return
	}
	if room := h.rooms[c.village]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.village)
		}
	}
	c.village = ""
}

func (h *Hub) drop(c *Client) {
	if !h.clients[c] {
		return
	}
	h.leave(c)
	delete(h.clients, c)
	close(c.Send)
}

// Register adds a client that has not joined any village yet.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join moves c into the room of village. A later join replaces the earlier one.
func (h *Hub) Join(c *Client, village string) {
	village = utils.NormalizeVillage(village)
	if village == "" {
		return
	}
	select {
	case h.join <- joinRequest{client: c, village: village}:
	case <-h.done:
	}
}

// Deliver fans an encoded frame out to the village room.
func (h *Hub) Deliver(village string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{village: utils.NormalizeVillage(village), data: data}:
	case <-h.done:
	}
}

// Publish implements reservation.Broadcaster for a single instance.
func (h *Hub) Publish(_ context.Context, r reservation.Reservation) error {
	data, err := EncodeUpdate(r)
	if err != nil {
		return err
	}
	h.Deliver(r.Village, data)
	return nil
}

// Subscribers reports how many clients are in the room of village.
func (h *Hub) Subscribers(village string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[utils.NormalizeVillage(village)])
}
