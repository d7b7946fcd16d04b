// Package stream fans session change events out to independent consumers
// such as the watch renderer and the status server's event stream.
package stream

import (
	"context"
	"sync"
	"time"
)

// AllTopics subscribes to every topic.
const AllTopics = "*"

// Event reports that the named topic (a source name, or "errors") changed.
type Event struct {
	Topic string    `json:"topic"`
	Seq   uint64    `json:"seq"`
	At    time.Time `json:"at"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           256,
		SubscriberBufferSize: 32,
	}
}

// Hub distributes events from publishers to subscriber channels. Sends
// never block: a full buffer drops the event for that subscriber only.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	events      chan Event
	done        chan struct{}
	started     bool
	seq         uint64

	metricsMu sync.RWMutex
	received  uint64
	delivered uint64
	dropped   uint64
}

// Subscriber is one consumer channel.
type Subscriber struct {
	ID           string
	Channel      chan Event
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		events:      make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.loop(ctx)
}

func (h *Hub) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case ev := <-h.events:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()
			h.broadcast(ev)
		}
	}
}

// Stop stops the hub and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for topic, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, topic)
	}
}

// Subscribe returns a channel receiving events for topic, or for every
// topic when topic is AllTopics.
func (h *Hub) Subscribe(topic string) <-chan Event {
	return h.SubscribeWithID(topic, "")
}

// SubscribeWithID subscribes with an identifier used in logs.
func (h *Hub) SubscribeWithID(topic, id string) <-chan Event {
	ch := make(chan Event, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		ID:        id,
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[topic] = append(h.subscribers[topic], sub)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (h *Hub) Unsubscribe(topic string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish queues a change of topic. It never blocks; when the queue is full
// the event is dropped.
func (h *Hub) Publish(topic string) {
	h.mu.Lock()
	h.seq++
	ev := Event{Topic: topic, Seq: h.seq, At: time.Now()}
	h.mu.Unlock()

	select {
	case h.events <- ev:
	default:
		h.metricsMu.Lock()
		h.dropped++
		h.metricsMu.Unlock()
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := append([]*Subscriber{}, h.subscribers[ev.Topic]...)
	if ev.Topic != AllTopics {
		targets = append(targets, h.subscribers[AllTopics]...)
	}

	for _, sub := range targets {
		select {
		case sub.Channel <- ev:
			h.metricsMu.Lock()
			h.delivered++
			h.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.dropped++
			h.metricsMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of subscribers across all topics.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	return count
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64 `json:"received"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Metrics returns hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.RLock()
	m := HubMetrics{
		Received:  h.received,
		Delivered: h.delivered,
		Dropped:   h.dropped,
	}
	h.metricsMu.RUnlock()
	m.Subscribers = h.SubscriberCount()
	return m
}
