// Package watch fans out change notifications to live queries. A live query
// delivers a snapshot as soon as it subscribes and again after every change
// published on its topic, until it is cancelled.
package watch

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Hub routes change notifications by topic.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*Subscription
	nextID uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]*Subscription)}
}

// Subscription is the cancel handle of a listener. Cancel may be called any
// number of times; the listener is released exactly once.
type Subscription struct {
	id        uint64
	topic     string
	hub       *Hub
	notify    func()
	cancelled atomic.Bool
	once      sync.Once
	onCancel  func()
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancelled.Store(true)
		s.hub.remove(s)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
}

func (s *Subscription) Cancelled() bool {
	return s == nil || s.cancelled.Load()
}

// OnCancel registers fn to run when the subscription is released.
func (s *Subscription) OnCancel(fn func()) {
	s.onCancel = fn
}

// Subscribe calls notify after every Publish on topic.
func (h *Hub) Subscribe(topic string, notify func()) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{id: h.nextID, topic: topic, hub: h, notify: notify}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]*Subscription)
	}
	h.subs[topic][sub.id] = sub
	return sub
}

// Publish notifies every listener of the given topics. Listeners run on the
// caller's goroutine, outside the hub lock.
func (h *Hub) Publish(topics ...string) {
	var pending []*Subscription

	h.mu.RLock()
	for _, topic := range topics {
		for _, sub := range h.subs[topic] {
			pending = append(pending, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range pending {
		if !sub.cancelled.Load() {
			sub.notify()
		}
	}
}

// Count returns the number of live listeners on topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subs[s.topic]
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(h.subs, s.topic)
	}
}

// Watch subscribes run on topic and calls it once right away. Runs of one
// subscription never overlap, so whatever run sees last is what it reports
// last. Nothing runs after Cancel returns.
func Watch(h *Hub, topic string, run func()) *Subscription {
	var mu sync.Mutex
	var sub *Subscription

	serial := func() {
		mu.Lock()
		defer mu.Unlock()
		if sub != nil && sub.Cancelled() {
			return
		}
		run()
	}

	mu.Lock()
	sub = h.Subscribe(topic, serial)
	mu.Unlock()
	serial()
	return sub
}

// Query subscribes a live query on topic. fetch runs once immediately and
// again after each change; its result is handed to deliver.
func Query[T any](h *Hub, topic string, fetch func() (T, error), deliver func(T, error)) *Subscription {
	return Watch(h, topic, func() { deliver(fetch()) })
}

func topic(parts ...string) string {
	return strings.Join(parts, ":")
}

func VehicleTopic(vehicleID string) string { return topic("vehicle", vehicleID) }
func OwnerVehiclesTopic(ownerID string) string { return topic("vehicles", "owner", ownerID) }
func MechanicVehiclesTopic(mechID string) string { return topic("vehicles", "mechanic", mechID) }
func MaintenanceTopic(vehicleID string) string { return topic("maintenance", vehicleID) }
func UserTopic(userID string) string { return topic("user", userID) }
