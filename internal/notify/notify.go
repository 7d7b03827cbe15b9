// Package notify fans committed marketplace events out to live subscribers.
//
// Publish never blocks the executor: a subscriber whose buffer is full
// misses the envelope and the drop is counted. Subscribers that need every
// event read the journal instead.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/fairyhunter13/service-marketplace-ledger/internal/model"
)

// Envelope is one committed event with its journal position.
type Envelope struct {
	Seq   uint64          `json:"seq"`
	Time  model.Timestamp `json:"time"`
	Kind  model.EventKind `json:"kind"`
	Event model.Event     `json:"event"`
}

// Hub is a set of subscriptions. The zero value is not usable; call NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives envelopes on C until it or its hub is closed, at
// which point C is closed.
type Subscription struct {
	C <-chan Envelope

	ch    chan Envelope
	kinds map[model.EventKind]bool
	hub   *Hub
	once  sync.Once
}

// Subscribe registers a subscription buffering up to buffer envelopes. With
// no kinds it receives every event; otherwise only the listed kinds.
func (h *Hub) Subscribe(buffer int, kinds ...model.EventKind) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Envelope, buffer)
	s := &Subscription{C: ch, ch: ch, hub: h}
	if len(kinds) > 0 {
		s.kinds = make(map[model.EventKind]bool, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = true
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		s.once.Do(func() {})
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Close unsubscribes s. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.hub.subs, s)
		close(s.ch)
	})
}

func (s *Subscription) wants(k model.EventKind) bool {
	return s.kinds == nil || s.kinds[k]
}

// Publish delivers envs to every interested subscriber without blocking.
func (h *Hub) Publish(envs ...Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, env := range envs {
		h.published.Add(1)
		for s := range h.subs {
			if !s.wants(env.Kind) {
				continue
			}
			select {
			case s.ch <- env:
			default:
				h.dropped.Add(1)
			}
		}
	}
}

// Close closes every subscription. Later subscriptions start closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.closeLocked()
	}
}

// Stats returns publish and drop counters and the live subscriber count.
func (h *Hub) Stats() (published, dropped uint64, subscribers int) {
	h.mu.Lock()
	subscribers = len(h.subs)
	h.mu.Unlock()
	return h.published.Load(), h.dropped.Load(), subscribers
}
