//go:build property

package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDebounceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("a burst runs the target once with its last argument", prop.ForAll(
		func(burst []int) bool {
			var mu sync.Mutex
			var got []int
			d := New(time.Hour, func(v int) {
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			})
			defer d.Stop()

			for _, v := range burst {
				d.Call(v)
			}
			d.Flush()

			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1 && got[0] == burst[len(burst)-1]
		},
		gen.SliceOfN(20, gen.Int()).SuchThat(func(s []int) bool { return len(s) > 0 }),
	))

	properties.Property("group flush delivers the last argument per key", prop.ForAll(
		func(keys []int) bool {
			last := map[int]int{}
			got := map[int]int{}
			g := NewGroup(time.Hour, func(k, v int) { got[k] = v })
			defer g.Stop()

			for i, k := range keys {
				key := k % 3
				g.Call(key, i)
				last[key] = i
			}
			g.FlushAll()

			if len(got) != len(last) {
				return false
			}
			for k, v := range last {
				if got[k] != v {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
