package vfs

import "time"

// clock hands out millisecond timestamps that never go backwards, even if
// the wall clock does. Callers hold the store's write lock.
type clock struct {
	now  func() time.Time
	last int64
}

func newClock() *clock {
	return &clock{now: time.Now}
}

func (c *clock) nowMillis() int64 {
	ms := c.now().UnixMilli()
	if ms < c.last {
		ms = c.last
	}
	c.last = ms

	return ms
}
