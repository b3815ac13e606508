// Package notify pushes evaluation progress to websocket subscribers.
// Delivery is at most once: events are dropped for absent or slow
// subscribers and are never replayed. Every event carries a full
// snapshot, so the next event makes a subscriber whole again.
package notify

import (
	"context"
	"sync"

	"competenest/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	eventJoin   = "join"
	eventUpdate = "update"
)

// Message is the wire envelope pushed to subscribers.
type Message struct {
	Event   string      `json:"event"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload,omitempty"`
}

type subscription struct {
	client *Client
	topic  string
}

// Hub routes published events to the subscribers of their topic. A
// connection joins topics by sending join frames; all its subscriptions
// drop together when it disconnects. Topics are implicit: they exist
// while at least one subscriber holds them and carry no state of their
// own.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}

	register   chan *Client
	subscribe  chan subscription
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

// NewHub creates a hub. Run must be started before publishing.
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]map[string]struct{}),
		register:   make(chan *Client),
		subscribe:  make(chan subscription),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

// Run processes connections, joins and publishes until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case sub := <-h.subscribe:
			h.addSubscription(sub)
		case client := <-h.unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.deliver(message)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Close stops the hub and disconnects every subscriber.
func (h *Hub) Close() {
	close(h.done)
}

// Publish sends an update to the subscribers of the topic. It never
// blocks: with no subscriber, or a full hub queue, the event is dropped.
func (h *Hub) Publish(topic string, payload interface{}) {
	message := &Message{Event: eventUpdate, Topic: topic, Payload: payload}
	select {
	case h.broadcast <- message:
	default:
		logger.Warn(context.Background(), "notify queue full, event dropped",
			zap.String("topic", topic))
	}
}

// SubscriberCount reports how many connections hold the topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = make(map[string]struct{})
}

func (h *Hub) addSubscription(sub subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics, ok := h.clients[sub.client]
	if !ok {
		// The connection dropped before the join was processed.
		return
	}
	topics[sub.topic] = struct{}{}
	subscribers, ok := h.topics[sub.topic]
	if !ok {
		subscribers = make(map[*Client]struct{})
		h.topics[sub.topic] = subscribers
	}
	subscribers[sub.client] = struct{}{}
	logger.Debug(context.Background(), "subscriber joined",
		zap.String("topic", sub.topic),
		zap.Int("subscribers", len(subscribers)))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	topics, ok := h.clients[client]
	if !ok {
		return
	}
	for topic := range topics {
		subscribers := h.topics[topic]
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) deliver(message *Message) {
	var slow []*Client
	h.mu.RLock()
	for client := range h.topics[message.Topic] {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// Slow subscribers drop their connection, not the hub. Removal runs
	// on the hub goroutine after the read lock is released, so it cannot
	// strand a send on the unregister channel past Close.
	for _, client := range slow {
		logger.Warn(context.Background(), "subscriber send queue full, disconnecting",
			zap.String("topic", message.Topic))
		h.removeClient(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	for topic := range h.topics {
		delete(h.topics, topic)
	}
}
