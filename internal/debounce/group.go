package debounce

import (
	"sync"
	"time"
)

// Group keeps one independent Debouncer per key, all sharing a quiet period.
// A burst on one key never delays or cancels another key.
type Group[K comparable, T any] struct {
	mu         sync.Mutex
	delay      time.Duration
	fn         func(K, T)
	debouncers map[K]*Debouncer[T]
	stopped    bool
}

// NewGroup creates a keyed debouncer group.
func NewGroup[K comparable, T any](delay time.Duration, fn func(K, T)) *Group[K, T] {
	return &Group[K, T]{
		delay:      delay,
		fn:         fn,
		debouncers: make(map[K]*Debouncer[T]),
	}
}

// Call schedules fn(key, arg) after the key's quiet period.
func (g *Group[K, T]) Call(key K, arg T) {
	if d := g.get(key, true); d != nil {
		d.Call(arg)
	}
}

// Flush runs the key's pending call now and reports whether there was one.
func (g *Group[K, T]) Flush(key K) bool {
	if d := g.get(key, false); d != nil {
		return d.Flush()
	}

	return false
}

// FlushAll runs every pending call now and returns how many ran.
func (g *Group[K, T]) FlushAll() int {
	n := 0
	for _, d := range g.snapshot() {
		if d.Flush() {
			n++
		}
	}

	return n
}

// Cancel drops the key's pending call.
func (g *Group[K, T]) Cancel(key K) bool {
	if d := g.get(key, false); d != nil {
		return d.Cancel()
	}

	return false
}

// Pending reports whether key has a scheduled call.
func (g *Group[K, T]) Pending(key K) bool {
	if d := g.get(key, false); d != nil {
		return d.Pending()
	}

	return false
}

// Stop cancels every pending call. Call is a no-op afterwards.
func (g *Group[K, T]) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()

	for _, d := range g.snapshot() {
		d.Stop()
	}
}

func (g *Group[K, T]) get(key K, create bool) *Debouncer[T] {
	g.mu.Lock()
	defer g.mu.Unlock()

	d, ok := g.debouncers[key]
	if ok || !create || g.stopped {
		return d
	}

	d = New(g.delay, func(arg T) { g.fn(key, arg) })
	g.debouncers[key] = d

	return d
}

func (g *Group[K, T]) snapshot() []*Debouncer[T] {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Debouncer[T], 0, len(g.debouncers))
	for _, d := range g.debouncers {
		out = append(out, d)
	}

	return out
}
