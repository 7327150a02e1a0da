// Package gateway serves the dashboard backend: the snapshot websocket, the
// indicator config API, health and metrics.
package gateway

import (
	"log/slog"
	"sort"
	"sync"

	"indicator-dashboardv1/internal/metrics"
	"indicator-dashboardv1/internal/model"
)

// Topic is one symbol/interval stream clients can subscribe to.
type Topic struct {
	Symbol   string
	Interval string
}

// Key returns the "symbol|interval" form.
func (t Topic) Key() string { return model.TopicKey(t.Symbol, t.Interval) }

// Hub tracks websocket clients per topic and fans snapshots out to them.
type Hub struct {
	mu      sync.RWMutex
	topics  map[Topic]map[*Client]struct{}
	latest  map[Topic][]byte
	clients int

	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		topics:  make(map[Topic]map[*Client]struct{}),
		latest:  make(map[Topic][]byte),
		metrics: m,
		log:     log.With("component", "hub"),
	}
}

// register adds c to its topic and queues the topic's latest snapshot.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.topics[c.topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[c.topic] = set
	}
	set[c] = struct{}{}
	h.clients++
	count := h.clients
	latest := h.latest[c.topic]
	h.mu.Unlock()

	if latest != nil {
		c.enqueue(latest)
	}
	if h.metrics != nil {
		h.metrics.ConnectedClients.Set(float64(count))
	}
	h.log.Info("client connected", "client", c.id, "topic", c.topic.Key(), "clients", count)
}

// unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.topics[c.topic]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.topics, c.topic)
	}
	h.clients--
	count := h.clients
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.ConnectedClients.Set(float64(count))
	}
	h.log.Info("client disconnected", "client", c.id, "topic", c.topic.Key(), "clients", count)
}

// Broadcast stores data as the topic's latest snapshot and queues it for
// every subscriber. Clients with a full buffer miss this message.
func (h *Hub) Broadcast(t Topic, data []byte) (sent, dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[t]
	if !ok {
		return 0, 0
	}
	h.latest[t] = data
	for c := range set {
		select {
		case c.send <- data:
			sent++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		if h.metrics != nil {
			h.metrics.DroppedMessages.Add(float64(dropped))
		}
		h.log.Warn("dropped messages for slow clients", "topic", t.Key(), "dropped", dropped)
	}
	return sent, dropped
}

// Topics returns the topics with at least one subscriber, sorted by key.
// Cached snapshots of topics nobody watches anymore are dropped.
func (h *Hub) Topics() []Topic {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Topic, 0, len(h.topics))
	for t := range h.topics {
		out = append(out, t)
	}
	for t := range h.latest {
		if _, ok := h.topics[t]; !ok {
			delete(h.latest, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients
}
