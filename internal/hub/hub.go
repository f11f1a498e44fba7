// Package hub fans agent events out to subscribed stream connections.
package hub

import (
	"encoding/json"
	"sync"
	"time"
)

// Topics carried by the hub.
const (
	TopicUpdates    = "updates"
	TopicSelfUpdate = "selfupdate"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection subscribes Writer to every topic in Topics. An empty Topics
// list subscribes to all topics.
type Connection struct {
	Topics []string
	Writer Writer
}

// Event is the envelope written to subscribers.
type Event struct {
	Topic string    `json:"topic"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data"`
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
	now         func() time.Time
}

const allTopics = "*"

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{}), now: time.Now}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topicsOf(conn) {
		if h.connections[topic] == nil {
			h.connections[topic] = make(map[*Connection]struct{})
		}
		h.connections[topic][conn] = struct{}{}
	}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topicsOf(conn) {
		set := h.connections[topic]
		if set == nil {
			continue
		}
		delete(set, conn)
		if len(set) == 0 {
			delete(h.connections, topic)
		}
	}
}

// Subscribers returns the number of connections that would receive topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[topic]) + len(h.connections[allTopics])
}

func (h *Hub) Broadcast(topic string, message []byte) {
	h.mu.RLock()
	seen := make(map[*Connection]struct{})
	var conns []*Connection
	for _, key := range []string{topic, allTopics} {
		for c := range h.connections[key] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}

// Publish wraps data in an Event and broadcasts it as JSON. A nil hub, or
// a topic nobody listens to, discards the event without encoding it.
func (h *Hub) Publish(topic string, data any) error {
	if h == nil || h.Subscribers(topic) == 0 {
		return nil
	}
	msg, err := json.Marshal(Event{Topic: topic, Time: h.now().UTC(), Data: data})
	if err != nil {
		return err
	}
	h.Broadcast(topic, msg)
	return nil
}

func topicsOf(conn *Connection) []string {
	if len(conn.Topics) == 0 {
		return []string{allTopics}
	}
	return conn.Topics
}
