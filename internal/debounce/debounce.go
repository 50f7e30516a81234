// Package debounce coalesces bursts of calls into a single deferred call.
//
// Every Call cancels whatever was scheduled and schedules the target again,
// so the target runs once, with the arguments of the last Call, no earlier
// than the quiet period after that Call. Invocations of one Debouncer never
// overlap and never run out of order.
package debounce

import (
	"sync"
	"time"
)

// Debouncer defers calls to fn until calls stop arriving for delay.
type Debouncer[T any] struct {
	mu    sync.Mutex
	runMu sync.Mutex // held while fn runs

	delay time.Duration
	fn    func(T)

	timer   *time.Timer
	gen     uint64 // bumped on every Call, Flush and Cancel; stale timers compare unequal
	arg     T
	pending bool
	stopped bool
}

// New creates a debouncer for fn with the given quiet period.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay < 0 {
		delay = 0
	}

	return &Debouncer[T]{delay: delay, fn: fn}
}

// Delay returns the quiet period.
func (d *Debouncer[T]) Delay() time.Duration {
	return d.delay
}

// Call records arg and restarts the quiet period. It is a no-op after Stop.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.arg = arg
	d.pending = true
	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush runs the pending call now, on the calling goroutine, and reports
// whether there was one. fn must not call Flush on its own debouncer.
func (d *Debouncer[T]) Flush() bool {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	arg, ok := d.take(0, false)
	if !ok {
		return false
	}
	d.fn(arg)

	return true
}

// Cancel drops the pending call, if any, and reports whether there was one.
func (d *Debouncer[T]) Cancel() bool {
	_, ok := d.take(0, false)
	return ok
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending
}

// Stop cancels the pending call and disables the debouncer.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.Cancel()
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	arg, ok := d.take(gen, true)
	if !ok {
		return
	}
	d.fn(arg)
}

// take clears the pending call and returns its argument. When checkGen is
// set the call is only taken if no Call, Flush or Cancel happened since gen.
func (d *Debouncer[T]) take(gen uint64, checkGen bool) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	if !d.pending || (checkGen && gen != d.gen) {
		return zero, false
	}

	arg := d.arg
	d.arg = zero
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	return arg, true
}
