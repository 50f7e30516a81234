package notify

import (
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// scope counts the live registrations on one path.
type scope struct {
	recursive int
	flat      int
}

// scopeIndex is a patricia tree of watched paths. Matching an event walks
// every registered prefix of the event path, so cost grows with path depth
// rather than with the number of watches.
type scopeIndex struct {
	tree *radix.Tree
}

func newScopeIndex() *scopeIndex {
	return &scopeIndex{tree: radix.New()}
}

func (idx *scopeIndex) add(path string, recursive bool) {
	sc := &scope{}
	if v, ok := idx.tree.Get(path); ok {
		sc = v.(*scope)
	}
	if recursive {
		sc.recursive++
	} else {
		sc.flat++
	}
	idx.tree.Insert(path, sc)
}

func (idx *scopeIndex) remove(path string, recursive bool) {
	v, ok := idx.tree.Get(path)
	if !ok {
		return
	}
	sc := v.(*scope)
	if recursive {
		sc.recursive--
	} else {
		sc.flat--
	}
	if sc.recursive <= 0 && sc.flat <= 0 {
		idx.tree.Delete(path)
	}
}

func (idx *scopeIndex) len() int {
	return idx.tree.Len()
}

// covers reports whether any registration's scope contains path. A
// non-recursive watch covers the path itself and its direct children.
func (idx *scopeIndex) covers(path string) bool {
	matched := false
	idx.tree.WalkPath(path, func(key string, v interface{}) bool {
		sc := v.(*scope)
		if key == path {
			matched = true
			return true
		}

		var rest string
		switch {
		case key == "/":
			rest = path[1:]
		case path[len(key)] == '/':
			rest = path[len(key)+1:]
		default:
			// "/a" is a string prefix of "/ab" but not a path ancestor.
			return false
		}

		if sc.recursive > 0 || (sc.flat > 0 && !strings.Contains(rest, "/")) {
			matched = true
			return true
		}

		return false
	})

	return matched
}

// Watch is one (path, recursive) registration on a Bus. It holds no
// ownership over nodes; disposing it only narrows what observers receive.
type Watch struct {
	bus       *Bus
	path      string
	recursive bool
	once      sync.Once
}

// Path returns the normalized watched path.
func (w *Watch) Path() string { return w.path }

// Recursive reports whether descendants beyond direct children are covered.
func (w *Watch) Recursive() bool { return w.recursive }

// Covers reports whether path falls inside this watch's own scope.
func (w *Watch) Covers(path string) bool {
	if path == w.path {
		return true
	}

	var rest string
	switch {
	case w.path == "/":
		rest = strings.TrimPrefix(path, "/")
	case strings.HasPrefix(path, w.path+"/"):
		rest = path[len(w.path)+1:]
	default:
		return false
	}

	return w.recursive || !strings.Contains(rest, "/")
}

// Dispose removes the registration. Safe to call more than once.
func (w *Watch) Dispose() {
	w.once.Do(func() {
		w.bus.mu.Lock()
		defer w.bus.mu.Unlock()
		w.bus.scopes.remove(w.path, w.recursive)
	})
}

// normalizeWatchPath turns "", "a/b/" and "/a/b/" into "/", "/a/b", "/a/b".
func normalizeWatchPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}

	return p
}
