// Package notify implements the change notification bus that sits between the
// sandbox filesystem and everything that reacts to it.
//
// Events are buffered unconditionally as they are emitted and flushed, in
// emission order, on the next scheduling quantum. Watch scopes are evaluated
// at flush time, so a watch registered after an event was emitted but before
// the flush still sees it. A flush boundary is a delivery boundary only; it
// says nothing about atomicity beyond what a single store operation already
// guarantees by emitting all of its events together.
package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/metrics"
)

// DefaultQuantum is the delay between the first buffered event and its flush.
const DefaultQuantum = 5 * time.Millisecond

// Bus buffers change events and delivers them in batches to observers.
type Bus struct {
	mu        sync.Mutex
	deliverMu sync.Mutex // serializes flushes so batches never interleave

	quantum time.Duration
	pending []Event
	timer   *time.Timer
	closed  bool

	scopes      *scopeIndex
	subscribers []*Subscription
	nextID      uint64

	logger logging.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithQuantum sets the flush delay.
func WithQuantum(d time.Duration) Option {
	return func(b *Bus) {
		if d >= 0 {
			b.quantum = d
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger.WithComponent("notify")
		}
	}
}

// NewBus creates a bus with no watches and no subscribers.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		quantum: DefaultQuantum,
		scopes:  newScopeIndex(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Emit buffers events and arms the flush timer if it is not already armed.
func (b *Bus) Emit(events ...Event) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.pending = append(b.pending, events...)
	metrics.RecordEvents("emitted", len(events))

	if b.timer == nil {
		b.timer = time.AfterFunc(b.quantum, b.Flush)
	}
}

// Flush delivers everything buffered so far. It is called by the timer and
// may be called directly (tests, shutdown). Observers must not call Flush.
func (b *Bus) Flush() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	events := b.pending
	b.pending = nil

	if len(events) == 0 {
		b.mu.Unlock()
		return
	}

	batch := make([]Event, 0, len(events))
	for _, ev := range events {
		if b.scopes.covers(ev.Path) {
			batch = append(batch, ev)
		}
	}
	subs := slices.Clone(b.subscribers)
	b.mu.Unlock()

	metrics.RecordFlush()
	metrics.RecordEvents("dropped", len(events)-len(batch))

	if len(batch) == 0 {
		return
	}

	b.logger.Debug(context.Background(), "flushing change events",
		"events", len(batch), "subscribers", len(subs))

	for _, sub := range subs {
		if sub.isClosed() {
			continue
		}
		sub.observer(slices.Clone(batch))
		metrics.RecordEvents("delivered", len(batch))
	}
}

// Watch registers a watch scope. Events outside every active scope are
// dropped at flush time.
func (b *Bus) Watch(path string, recursive bool) *Watch {
	w := &Watch{
		bus:       b,
		path:      normalizeWatchPath(path),
		recursive: recursive,
	}

	b.mu.Lock()
	b.scopes.add(w.path, w.recursive)
	b.mu.Unlock()

	return w
}

// Subscribe registers an observer for every flushed batch.
func (b *Bus) Subscribe(observer Observer) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, bus: b, observer: observer}
	b.subscribers = append(b.subscribers, sub)

	return sub
}

// Pending returns the number of buffered, not yet flushed events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

// WatchCount returns the number of distinct watched paths.
func (b *Bus) WatchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.scopes.len()
}

// SubscriberCount returns the number of open subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers)
}

// Close stops the flush timer and drops buffered events. Emit is a no-op
// afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
	b.subscribers = nil
	b.closed = true
}

// Subscription is an observer registration.
type Subscription struct {
	id       uint64
	bus      *Bus
	observer Observer

	mu     sync.Mutex
	closed bool
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Close unsubscribes. Batches already being delivered may still arrive.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	s.bus.subscribers = slices.DeleteFunc(s.bus.subscribers, func(other *Subscription) bool {
		return other.id == s.id
	})
}
