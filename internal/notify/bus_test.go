package notify

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered batches.
type recorder struct {
	mu      sync.Mutex
	batches [][]Event
}

func (r *recorder) observe(events []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *recorder) all() [][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Event, len(r.batches))
	copy(out, r.batches)
	return out
}

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeChanged, "changed"},
		{EventTypeDeleted, "deleted"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(Created("/index.html"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"created","path":"/index.html"}`, string(data))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"deleted","path":"/a"}`), &ev))
	assert.Equal(t, Deleted("/a"), ev)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"moved","path":"/a"}`), &ev))
}

func TestBusDeliversInEmissionOrder(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.observe)
	bus.Watch("/", true)

	bus.Emit(Created("/a"), Changed("/"))
	bus.Emit(Changed("/a"))
	bus.Emit(Deleted("/a"))
	bus.Flush()

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []Event{Created("/a"), Changed("/"), Changed("/a"), Deleted("/a")}, batches[0])
}

func TestBusFlushesOnQuantum(t *testing.T) {
	bus := NewBus(WithQuantum(10 * time.Millisecond))
	defer bus.Close()

	delivered := make(chan []Event, 1)
	bus.Subscribe(func(events []Event) { delivered <- events })
	bus.Watch("/", true)

	bus.Emit(Created("/x"))
	assert.Equal(t, 1, bus.Pending())

	select {
	case events := <-delivered:
		assert.Equal(t, []Event{Created("/x")}, events)
	case <-time.After(time.Second):
		t.Fatal("batch was not flushed")
	}
	assert.Equal(t, 0, bus.Pending())
}

func TestBusDropsEventsOutsideWatchScope(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.observe)
	bus.Watch("/src", false)

	bus.Emit(
		Changed("/src"),
		Created("/src/a.js"),
		Created("/src/lib/b.js"), // grandchild: not covered by a flat watch
		Created("/srcx"),         // string prefix, not a path child
		Created("/other"),
	)
	bus.Flush()

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []Event{Changed("/src"), Created("/src/a.js")}, batches[0])
}

func TestBusRecursiveWatch(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.observe)
	bus.Watch("/src/", true)

	bus.Emit(Created("/src/lib/deep/c.js"), Created("/elsewhere"))
	bus.Flush()

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []Event{Created("/src/lib/deep/c.js")}, batches[0])
}

func TestBusNoWatchNoDelivery(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.observe)

	bus.Emit(Created("/a"))
	bus.Flush()

	assert.Empty(t, rec.all())
}

func TestLateWatchBeforeFlushSeesBufferedEvents(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.observe)

	bus.Emit(Created("/late"))
	bus.Watch("/", true)
	bus.Flush()

	batches := rec.all()
	require.Len(t, batches, 1)
	assert.Equal(t, []Event{Created("/late")}, batches[0])
}

func TestWatchDispose(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()

	rec := &recorder{}
	bus.Subscribe(rec.observe)

	w1 := bus.Watch("/a", true)
	w2 := bus.Watch("/a", true)
	assert.Equal(t, 1, bus.WatchCount())

	w1.Dispose()
	w1.Dispose()
	bus.Emit(Changed("/a/b"))
	bus.Flush()
	require.Len(t, rec.all(), 1, "second registration on the same path keeps the scope alive")

	w2.Dispose()
	assert.Equal(t, 0, bus.WatchCount())
	bus.Emit(Changed("/a/b"))
	bus.Flush()
	assert.Len(t, rec.all(), 1)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()
	bus.Watch("/", true)

	first, second := &recorder{}, &recorder{}
	sub := bus.Subscribe(first.observe)
	bus.Subscribe(second.observe)
	assert.Equal(t, 2, bus.SubscriberCount())

	sub.Close()
	assert.Equal(t, 1, bus.SubscriberCount())
	bus.Emit(Created("/a"))
	bus.Flush()

	assert.Empty(t, first.all())
	assert.Len(t, second.all(), 1)
}

func TestObserversGetIndependentSlices(t *testing.T) {
	bus := NewBus(WithQuantum(time.Hour))
	defer bus.Close()
	bus.Watch("/", true)

	var got [][]Event
	bus.Subscribe(func(events []Event) {
		events[0].Path = "/mutated"
		got = append(got, events)
	})
	bus.Subscribe(func(events []Event) { got = append(got, events) })

	bus.Emit(Created("/a"))
	bus.Flush()

	require.Len(t, got, 2)
	assert.Equal(t, "/a", got[1][0].Path)
}

func TestEmitAfterCloseIsNoop(t *testing.T) {
	bus := NewBus()
	bus.Close()
	bus.Emit(Created("/a"))
	assert.Equal(t, 0, bus.Pending())
}

func TestNormalizeWatchPath(t *testing.T) {
	assert.Equal(t, "/", normalizeWatchPath(""))
	assert.Equal(t, "/", normalizeWatchPath("/"))
	assert.Equal(t, "/a/b", normalizeWatchPath("a/b/"))
	assert.Equal(t, "/a/b", normalizeWatchPath("/a/b//"))
}

func TestWatchCovers(t *testing.T) {
	bus := NewBus()
	flat := bus.Watch("/a", false)
	deep := bus.Watch("/a/", true)
	root := bus.Watch("/", false)

	testCases := []struct {
		path               string
		flat, deep, atRoot bool
	}{
		{"/a", true, true, true},
		{"/a/b", true, true, false},
		{"/a/b/c", false, true, false},
		{"/ab", false, false, true},
		{"/x", false, false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.flat, flat.Covers(tc.path))
			assert.Equal(t, tc.deep, deep.Covers(tc.path))
			assert.Equal(t, tc.atRoot, root.Covers(tc.path))
		})
	}
}
