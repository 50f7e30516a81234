package vfs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/notify"
)

type batches struct {
	mu  sync.Mutex
	got [][]notify.Event
}

func (b *batches) observe(events []notify.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, events)
}

func (b *batches) take() [][]notify.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	got := b.got
	b.got = nil
	return got
}

func newTestProvider(t *testing.T) (*Provider, *batches) {
	t.Helper()
	bus := notify.NewBus(notify.WithQuantum(time.Hour))
	p := NewProvider(bus, logging.NewNop())

	rec := &batches{}
	sub := bus.Subscribe(rec.observe)
	watch := p.Watch("/", true)
	t.Cleanup(func() {
		watch.Dispose()
		sub.Close()
		bus.Close()
	})

	return p, rec
}

func TestProviderRenameArrivesInOneBatch(t *testing.T) {
	p, rec := newTestProvider(t)
	require.NoError(t, p.CreateDirectory("/src"))
	require.NoError(t, p.WriteFile("/src/a.txt", []byte("a"), createOpts))
	p.Bus().Flush()
	rec.take()

	require.NoError(t, p.Rename("/src", "/dst", RenameOptions{}))
	p.Bus().Flush()

	got := rec.take()
	require.Len(t, got, 1)
	assert.Equal(t, []notify.Event{notify.Deleted("/src"), notify.Created("/dst")}, got[0])
}

func TestProviderRenameEventsStayAdjacentUnderConcurrentWrites(t *testing.T) {
	p, rec := newTestProvider(t)
	require.NoError(t, p.WriteFile("/moving.txt", []byte("x"), createOpts))
	p.Bus().Flush()
	rec.take()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = p.WriteFile(fmt.Sprintf("/w%d-%d.txt", i, j), []byte("y"), createOpts)
			}
		}(i)
	}
	require.NoError(t, p.Rename("/moving.txt", "/moved.txt", RenameOptions{}))
	wg.Wait()
	p.Bus().Flush()

	got := rec.take()
	require.Len(t, got, 1)
	batch := got[0]

	idx := -1
	for i, ev := range batch {
		if ev == notify.Deleted("/moving.txt") {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	require.Less(t, idx+1, len(batch))
	assert.Equal(t, notify.Created("/moved.txt"), batch[idx+1])
}
