// Package vfs implements the in-memory sandbox filesystem.
//
// The store is an arena of nodes indexed by NodeID. Directories keep their
// entries in insertion order and every node carries a parent back-reference,
// so path resolution walks down from the root and mtime bubbling walks back
// up. All mutations take a single write lock and hand their change events to
// the configured notify.Emitter before the lock is released, which keeps the
// event order identical to the mutation order.
package vfs

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/conneroisu/litterbox/internal/errors"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/metrics"
	"github.com/conneroisu/litterbox/internal/notify"
)

// WriteOptions controls WriteFile.
type WriteOptions struct {
	// Create allows the target to be created when it does not exist. When the
	// target does exist, Create without Overwrite is rejected with FileExists.
	Create    bool
	Overwrite bool
}

// RenameOptions controls Rename.
type RenameOptions struct {
	Overwrite bool
}

// DeleteOptions controls Delete.
type DeleteOptions struct {
	Recursive bool
}

// Store is the node store. The zero value is not usable; call NewStore.
type Store struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*node
	nextID NodeID
	root   NodeID

	clock   *clock
	emitter notify.Emitter
	logger  logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEmitter sets where change events go. Without one, events are discarded.
func WithEmitter(emitter notify.Emitter) Option {
	return func(s *Store) {
		if emitter != nil {
			s.emitter = emitter
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.WithComponent("vfs")
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.clock.now = now
		}
	}
}

type discardEmitter struct{}

func (discardEmitter) Emit(...notify.Event) {}

// NewStore creates a store holding only the root directory.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:   make(map[NodeID]*node),
		clock:   newClock(),
		emitter: discardEmitter{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.clock.nowMillis()
	s.root = s.alloc(&node{
		name:    "",
		typ:     FileTypeDirectory,
		ctime:   now,
		mtime:   now,
		entries: make(map[string]NodeID),
	})

	return s
}

// Stat returns the metadata of the node at path.
func (s *Store) Stat(path string) (_ Metadata, err error) {
	defer func() { metrics.RecordFSOperation("stat", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(path)
	if err != nil {
		return Metadata{}, err
	}

	return n.metadata(), nil
}

// ReadDirectory lists the entries of the directory at path in insertion order.
func (s *Store) ReadDirectory(path string) (_ []DirEntry, err error) {
	defer func() { metrics.RecordFSOperation("read_directory", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if !n.isDir() {
		return nil, errors.FileNotADirectory(path)
	}

	entries := make([]DirEntry, 0, len(n.order))
	for _, name := range n.order {
		child := s.nodes[n.entries[name]]
		entries = append(entries, DirEntry{Name: name, Type: child.typ})
	}

	return entries, nil
}

// ReadFile returns a copy of the content of the file at path.
func (s *Store) ReadFile(path string) (_ []byte, err error) {
	defer func() { metrics.RecordFSOperation("read_file", err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.lookup(path)
	if err != nil {
		return nil, err
	}
	if n.isDir() {
		return nil, errors.FileIsADirectory(path)
	}

	return bytes.Clone(n.data), nil
}

// WriteFile replaces or creates the file at path.
func (s *Store) WriteFile(path string, content []byte, opts WriteOptions) (err error) {
	defer func() { metrics.RecordFSOperation("write_file", err) }()

	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return errors.FileIsADirectory("/")
	}
	canonical := joinPath(segments)

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.lookupParent(segments)
	if err != nil {
		return err
	}

	name := segments[len(segments)-1]
	childID, exists := parent.entries[name]

	if !exists {
		if !opts.Create {
			return errors.FileNotFound(canonical)
		}
		if parent.perms.Readonly() {
			return errors.NoPermissions(canonical, "parent directory is read-only")
		}

		now := s.clock.nowMillis()
		id := s.alloc(&node{
			parent: parent.id,
			name:   name,
			typ:    FileTypeFile,
			ctime:  now,
			mtime:  now,
			data:   bytes.Clone(content),
		})
		parent.addEntry(name, id)
		s.touch(parent, now)

		s.logger.Debug(context.Background(), "file created", "path", canonical, "size", len(content))
		s.emitter.Emit(notify.Created(canonical), notify.Changed(joinPath(segments[:len(segments)-1])))

		return nil
	}

	child := s.nodes[childID]
	switch {
	case child.isDir():
		return errors.FileIsADirectory(canonical)
	case opts.Create && !opts.Overwrite:
		return errors.FileExists(canonical)
	case child.perms.Readonly():
		return errors.NoPermissions(canonical, "file is read-only")
	}

	now := s.clock.nowMillis()
	child.data = bytes.Clone(content)
	s.touch(child, now)

	s.logger.Debug(context.Background(), "file written", "path", canonical, "size", len(content))
	s.emitter.Emit(notify.Changed(canonical))

	return nil
}

// Rename moves the node at oldPath to newPath, subtree included.
func (s *Store) Rename(oldPath, newPath string, opts RenameOptions) (err error) {
	defer func() { metrics.RecordFSOperation("rename", err) }()

	oldSegments, err := splitPath(oldPath)
	if err != nil {
		return err
	}
	newSegments, err := splitPath(newPath)
	if err != nil {
		return err
	}
	if len(oldSegments) == 0 || len(newSegments) == 0 {
		return errors.NoPermissions("/", "the root cannot be renamed")
	}
	oldCanonical, newCanonical := joinPath(oldSegments), joinPath(newSegments)

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := s.resolve(oldSegments)
	if err != nil {
		return err
	}
	if oldCanonical == newCanonical {
		return nil
	}
	if src.perms.Readonly() {
		return errors.NoPermissions(oldCanonical, "node is read-only")
	}
	if hasPathPrefix(newSegments, oldSegments) {
		return errors.NoPermissions(newCanonical, "cannot move a directory into itself")
	}

	dstParent, err := s.lookupParent(newSegments)
	if err != nil {
		return err
	}
	srcParent := s.nodes[src.parent]
	if srcParent.perms.Readonly() {
		return errors.NoPermissions(joinPath(oldSegments[:len(oldSegments)-1]), "parent directory is read-only")
	}
	if dstParent.perms.Readonly() {
		return errors.NoPermissions(joinPath(newSegments[:len(newSegments)-1]), "parent directory is read-only")
	}

	newName := newSegments[len(newSegments)-1]
	if existingID, exists := dstParent.entries[newName]; exists {
		if !opts.Overwrite {
			return errors.FileExists(newCanonical)
		}
		if hasPathPrefix(oldSegments, newSegments) {
			return errors.NoPermissions(newCanonical, "cannot replace an ancestor of the source")
		}
		existing := s.nodes[existingID]
		if existing.perms.Readonly() {
			return errors.NoPermissions(newCanonical, "target is read-only")
		}
		dstParent.removeEntry(newName)
		s.free(existing)
	}

	now := s.clock.nowMillis()
	srcParent.removeEntry(src.name)
	s.touch(srcParent, now)

	src.name = newName
	src.parent = dstParent.id
	dstParent.addEntry(newName, src.id)
	s.touch(dstParent, now)

	s.logger.Debug(context.Background(), "node renamed", "from", oldCanonical, "to", newCanonical)
	s.emitter.Emit(notify.Deleted(oldCanonical), notify.Created(newCanonical))

	return nil
}

// Delete removes the node at path. Non-empty directories need Recursive.
func (s *Store) Delete(path string, opts DeleteOptions) (err error) {
	defer func() { metrics.RecordFSOperation("delete", err) }()

	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return errors.NoPermissions("/", "the root cannot be deleted")
	}
	canonical := joinPath(segments)
	parentPath := joinPath(segments[:len(segments)-1])

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.resolve(segments)
	if err != nil {
		return err
	}
	parent := s.nodes[n.parent]

	switch {
	case n.perms.Readonly():
		return errors.NoPermissions(canonical, "node is read-only")
	case parent.perms.Readonly():
		return errors.NoPermissions(parentPath, "parent directory is read-only")
	case n.isDir() && len(n.entries) > 0 && !opts.Recursive:
		return errors.NoPermissions(canonical, "directory is not empty")
	}

	now := s.clock.nowMillis()
	parent.removeEntry(n.name)
	s.free(n)
	s.touch(parent, now)

	s.logger.Debug(context.Background(), "node deleted", "path", canonical)
	s.emitter.Emit(notify.Changed(parentPath), notify.Deleted(canonical))

	return nil
}

// CreateDirectory creates an empty directory at path. Its parent must exist.
func (s *Store) CreateDirectory(path string) (err error) {
	defer func() { metrics.RecordFSOperation("create_directory", err) }()

	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return errors.FileExists("/")
	}
	canonical := joinPath(segments)
	parentPath := joinPath(segments[:len(segments)-1])

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, err := s.lookupParent(segments)
	if err != nil {
		return err
	}

	name := segments[len(segments)-1]
	if _, exists := parent.entries[name]; exists {
		return errors.FileExists(canonical)
	}
	if parent.perms.Readonly() {
		return errors.NoPermissions(parentPath, "parent directory is read-only")
	}

	now := s.clock.nowMillis()
	id := s.alloc(&node{
		parent:  parent.id,
		name:    name,
		typ:     FileTypeDirectory,
		ctime:   now,
		mtime:   now,
		entries: make(map[string]NodeID),
	})
	parent.addEntry(name, id)
	s.touch(parent, now)

	s.logger.Debug(context.Background(), "directory created", "path", canonical)
	s.emitter.Emit(notify.Changed(parentPath), notify.Created(canonical))

	return nil
}

// SetPermissions replaces the permission bits of the node at path.
func (s *Store) SetPermissions(path string, perms Permissions) (err error) {
	defer func() { metrics.RecordFSOperation("set_permissions", err) }()

	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.resolve(segments)
	if err != nil {
		return err
	}
	if n.perms == perms {
		return nil
	}
	n.perms = perms

	s.emitter.Emit(notify.Changed(joinPath(segments)))

	return nil
}

// WalkFunc is called for every node visited by Walk. Returning SkipDir from
// a directory skips its children, from a file the file's remaining
// siblings; any other error stops the walk.
type WalkFunc func(path string, md Metadata) error

// SkipDir tells Walk not to descend into the current directory.
var SkipDir = errors.NewValidationError("skip_dir", "skip this directory")

// Walk visits root and its descendants depth-first, parents before children,
// siblings in insertion order. fn runs under the store's read lock and must
// not call mutating store methods.
func (s *Store) Walk(root string, fn WalkFunc) error {
	segments, err := splitPath(root)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := s.resolve(segments)
	if err != nil {
		return err
	}

	err = s.walk(joinPath(segments), n, fn)
	if err == SkipDir {
		return nil
	}

	return err
}

func (s *Store) walk(path string, n *node, fn WalkFunc) error {
	if err := fn(path, n.metadata()); err != nil {
		return err
	}
	if !n.isDir() {
		return nil
	}

	for _, name := range n.order {
		child := s.nodes[n.entries[name]]
		err := s.walk(Join(path, name), child, fn)
		if err == SkipDir {
			if child.isDir() {
				continue
			}
			// SkipDir on a file skips the rest of its directory.
			return nil
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of live nodes, root included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.nodes)
}

// lookup resolves an absolute path to its node.
func (s *Store) lookup(path string) (*node, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	return s.resolve(segments)
}

// resolve walks segments from the root. Any missing segment, including one
// that passes through a file, is FileNotFound.
func (s *Store) resolve(segments []string) (*node, error) {
	n := s.nodes[s.root]
	for i, seg := range segments {
		if !n.isDir() {
			return nil, errors.FileNotFound(joinPath(segments[:i+1]))
		}
		id, ok := n.entries[seg]
		if !ok {
			return nil, errors.FileNotFound(joinPath(segments[:i+1]))
		}
		n = s.nodes[id]
	}

	return n, nil
}

// lookupParent resolves the directory that holds the last segment.
func (s *Store) lookupParent(segments []string) (*node, error) {
	parentSegments := segments[:len(segments)-1]
	parent, err := s.resolve(parentSegments)
	if err != nil {
		return nil, err
	}
	if !parent.isDir() {
		return nil, errors.FileNotADirectory(joinPath(parentSegments))
	}

	return parent, nil
}

func (s *Store) alloc(n *node) NodeID {
	s.nextID++
	n.id = s.nextID
	s.nodes[n.id] = n

	return n.id
}

// free drops n and its whole subtree from the arena.
func (s *Store) free(n *node) {
	for _, id := range n.entries {
		s.free(s.nodes[id])
	}
	delete(s.nodes, n.id)
}

// touch sets mtime on n and every ancestor up to the root.
func (s *Store) touch(n *node, now int64) {
	for {
		n.mtime = now
		if n.id == s.root {
			return
		}
		n = s.nodes[n.parent]
	}
}
