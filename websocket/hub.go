package websocket

import (
	"context"
	"log"
	"sync"
)

// Authorizer decides whether userID may subscribe to topic.
type Authorizer func(ctx context.Context, userID uint, topic string) error

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Topic subscriptions (topic -> clients)
	topics map[string]map[*Client]bool

	// Guards clients, topics and stopped
	mu sync.RWMutex

	// Set once Run starts shutting down
	stopped bool

	// Unregister requests from clients
	unregister chan *Client

	authorize Authorizer

	// Closed once Run has returned
	done chan struct{}
}

// NewHub creates a new hub instance
func NewHub(authorize Authorizer) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		topics:     make(map[string]map[*Client]bool),
		unregister: make(chan *Client),
		authorize:  authorize,
		done:       make(chan struct{}),
	}
}

// Run processes disconnections until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.unregister:
			h.remove(client)
		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// join registers a new client before its pumps start, so its first
// request always finds it; it reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client] = true
	return true
}

// leave hands a disconnected client to Run, or removes it directly once the
// hub has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for topic, clients := range h.topics {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			// Clean up empty topics
			if len(clients) == 0 {
				delete(h.topics, topic)
			}
		}
	}
}

// subscribe adds a client to a topic
func (h *Hub) subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true
}

// unsubscribe removes a client from a topic
func (h *Hub) unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.topics[topic]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribers returns how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// broadcast sends a message to all clients on a topic. Clients whose send
// buffer is full are disconnected.
func (h *Hub) broadcast(topic string, message []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.topics[topic] {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		log.Printf("dropping slow client %s (user %d)", client.id, client.userID)
		h.remove(client)
	}
}

// PublishInsert notifies every subscriber of ins.Topic about a new row.
func (h *Hub) PublishInsert(ins Insert) {
	msg, err := Encode(TypeInsert, ins)
	if err != nil {
		log.Printf("error marshaling insert: %v", err)
		return
	}
	h.broadcast(ins.Topic, msg)
}
