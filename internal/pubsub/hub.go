// Package pubsub provides coalescing change signals keyed by conversation.
//
// A signal carries no payload: it only tells a waiter that something under the
// key changed and that it should re-read its store. Signals are delivered on
// one-slot channels, so a publisher never blocks and a slow waiter sees many
// publishes as one.
package pubsub

import "sync"

// AnyKey receives a signal for every published key.
const AnyKey = "*"

// Hub fans out change signals. The zero value is ready to use.
type Hub struct {
	topics sync.Map // string -> *topic
}

type topic struct {
	mu      sync.Mutex
	waiters map[*Waiter]struct{}
}

// Waiter receives signals for one key until closed.
type Waiter struct {
	C <-chan struct{}

	ch    chan struct{}
	key   string
	hub   *Hub
	close sync.Once
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) topic(key string) *topic {
	if t, ok := h.topics.Load(key); ok {
		return t.(*topic)
	}
	t, _ := h.topics.LoadOrStore(key, &topic{waiters: make(map[*Waiter]struct{})})
	return t.(*topic)
}

// Watch registers a waiter for key. Use AnyKey to observe every key.
func (h *Hub) Watch(key string) *Waiter {
	ch := make(chan struct{}, 1)
	w := &Waiter{C: ch, ch: ch, key: key, hub: h}

	t := h.topic(key)
	t.mu.Lock()
	t.waiters[w] = struct{}{}
	t.mu.Unlock()

	return w
}

// Publish signals every waiter of key and every AnyKey waiter.
func (h *Hub) Publish(key string) {
	h.signal(key)
	if key != AnyKey {
		h.signal(AnyKey)
	}
}

func (h *Hub) signal(key string) {
	v, ok := h.topics.Load(key)
	if !ok {
		return
	}
	t := v.(*topic)

	t.mu.Lock()
	defer t.mu.Unlock()
	for w := range t.waiters {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
}

// Waiters returns the number of registered waiters for key.
func (h *Hub) Waiters(key string) int {
	v, ok := h.topics.Load(key)
	if !ok {
		return 0
	}
	t := v.(*topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

// Close unregisters the waiter. Safe to call more than once.
func (w *Waiter) Close() {
	w.close.Do(func() {
		t := w.hub.topic(w.key)
		t.mu.Lock()
		delete(t.waiters, w)
		t.mu.Unlock()
	})
}
