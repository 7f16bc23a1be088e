package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/adapter/queue"
)

// Hub pushes live updates (charger status, session progress, payment and
// ticket events) to dashboard clients connected at /ws/updates.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *zap.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
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
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than block the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast wraps the payload with its subject and queues it for all clients.
func (h *Hub) Broadcast(subject string, data []byte) {
	frame, err := json.Marshal(map[string]interface{}{
		"subject": subject,
		"payload": json.RawMessage(data),
	})
	if err != nil {
		h.log.Warn("Failed to frame broadcast", zap.Error(err))
		return
	}
	h.broadcast <- frame
}

// BindQueue relays broker events on the given subjects into the hub, so
// dashboards see the same stream other services consume.
func (h *Hub) BindQueue(q queue.MessageQueue, subjects ...string) error {
	for _, subject := range subjects {
		subj := subject
		if err := q.Subscribe(subj, func(data []byte) error {
			h.Broadcast(subj, data)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) AddClient(conn *websocket.Conn, userID string) {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), userID: userID}
	client.hub.register <- client

	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	// Clients only listen; the read loop exists to notice disconnects and
	// service control frames.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)

		// Drain anything already queued into the same frame batch.
		n := len(c.send)
		for i := 0; i < n; i++ {
			w.Write(<-c.send)
		}
		if err := w.Close(); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
