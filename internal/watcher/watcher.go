// Package watcher mirrors a host directory into the sandbox filesystem.
//
// Import copies the tree once. Start then follows host changes with fsnotify
// and applies them in debounced batches, so an editor's save-rename-chmod
// dance lands in the sandbox as a single write.
package watcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sourcegraph/conc/pool"

	"github.com/conneroisu/litterbox/internal/debounce"
	"github.com/conneroisu/litterbox/internal/errors"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/vfs"
)

// Target is the part of the sandbox filesystem the mirror writes to.
type Target interface {
	Stat(path string) (vfs.Metadata, error)
	WriteFile(path string, content []byte, opts vfs.WriteOptions) error
	Delete(path string, opts vfs.DeleteOptions) error
	CreateDirectory(path string) error
}

// ChangeEvent represents a host file change
type ChangeEvent struct {
	Type EventType
	Path string
}

// EventType represents the type of host file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a host path, relative to the mirror root and
// slash-separated, should be mirrored.
type FileFilter func(rel string) bool

// DefaultQuietPeriod is the default batching delay for host changes.
const DefaultQuietPeriod = 100 * time.Millisecond

// DefaultMaxFileSize caps the size of a mirrored file.
const DefaultMaxFileSize = 10 << 20

// Mirror copies a host directory into a sandbox directory and keeps it in sync.
type Mirror struct {
	root   string
	prefix string
	target Target

	filters     []FileFilter
	maxFileSize int64
	workers     int
	logger      logging.Logger

	watcher *fsnotify.Watcher
	batch   *debounce.Debouncer[struct{}]

	mu      sync.Mutex
	pending map[string]ChangeEvent

	done chan struct{}
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithPrefix mirrors into a virtual directory other than the root.
func WithPrefix(prefix string) Option {
	return func(m *Mirror) { m.prefix = prefix }
}

// WithFilters replaces the default filters.
func WithFilters(filters ...FileFilter) Option {
	return func(m *Mirror) { m.filters = filters }
}

// WithQuietPeriod sets the batching delay for host changes.
func WithQuietPeriod(d time.Duration) Option {
	return func(m *Mirror) {
		m.batch = debounce.New(d, func(struct{}) { m.apply() })
	}
}

// WithMaxFileSize skips host files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(m *Mirror) { m.maxFileSize = n }
}

// WithLogger sets the mirror logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger.WithComponent("mirror")
		}
	}
}

// NewMirror prepares a mirror of the host directory root.
func NewMirror(root string, target Target, opts ...Option) (*Mirror, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving mirror root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("mirror root: %w", err)
	}
	if !info.IsDir() {
		return nil, errors.NewValidationError("invalid_mirror_root", abs+" is not a directory")
	}

	m := &Mirror{
		root:        abs,
		prefix:      "/",
		target:      target,
		filters:     []FileFilter{NoGitFilter, NoNodeModulesFilter},
		maxFileSize: DefaultMaxFileSize,
		workers:     min(max(runtime.NumCPU()*2, 4), 32),
		logger:      logging.NewNop(),
		pending:     make(map[string]ChangeEvent),
	}
	m.batch = debounce.New(DefaultQuietPeriod, func(struct{}) { m.apply() })
	for _, opt := range opts {
		opt(m)
	}

	if m.prefix, err = vfs.Clean(m.prefix); err != nil {
		return nil, err
	}

	return m, nil
}

// Root returns the absolute host directory.
func (m *Mirror) Root() string { return m.root }

// Import copies the host tree into the sandbox. Files are read concurrently
// and written in path order; directories are created first. Host files
// replace sandbox files of the same name.
func (m *Mirror) Import(ctx context.Context) (int, error) {
	if err := m.mkdirAll(m.prefix); err != nil {
		return 0, err
	}

	var dirs, files []string
	err := filepath.WalkDir(m.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == m.root {
			return nil
		}
		if !m.accept(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		} else if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", m.root, err)
	}

	for _, dir := range dirs {
		if err := m.mkdirAll(m.virtualPath(dir)); err != nil {
			return 0, err
		}
	}

	type hostFile struct {
		path    string
		content []byte
	}
	var (
		mu   sync.Mutex
		read []hostFile
	)

	p := pool.New().WithMaxGoroutines(m.workers).WithContext(ctx)
	for _, path := range files {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			content, ok, err := m.readHostFile(path)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			read = append(read, hostFile{path: path, content: content})
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return 0, fmt.Errorf("reading host files: %w", err)
	}

	slices.SortFunc(read, func(a, b hostFile) int { return strings.Compare(a.path, b.path) })
	for _, f := range read {
		err := m.target.WriteFile(m.virtualPath(f.path), f.content, vfs.WriteOptions{Create: true, Overwrite: true})
		if err != nil {
			return 0, fmt.Errorf("importing %s: %w", f.path, err)
		}
	}

	m.logger.Info(ctx, "host directory imported", "root", m.root, "dirs", len(dirs), "files", len(read))

	return len(read), nil
}

// Start watches the host tree until ctx is done or Stop is called.
func (m *Mirror) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating host watcher: %w", err)
	}
	if err := m.addRecursive(watcher, m.root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching host tree: %w", err)
	}
	m.watcher = watcher
	m.done = make(chan struct{})

	go m.watchLoop(ctx)

	return nil
}

// Stop stops watching and drops changes not yet applied.
func (m *Mirror) Stop() error {
	m.batch.Stop()
	if m.watcher == nil {
		return nil
	}

	err := m.watcher.Close()
	<-m.done

	return err
}

// Flush applies queued host changes now.
func (m *Mirror) Flush() bool {
	return m.batch.Flush()
}

func (m *Mirror) watchLoop(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleFsnotifyEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn(ctx, err, "host watcher error")
		}
	}
}

func (m *Mirror) handleFsnotifyEvent(event fsnotify.Event) {
	if event.Name == m.root || !m.accept(event.Name) {
		return
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := m.addRecursive(m.watcher, event.Name); err != nil {
				m.logger.Warn(context.Background(), err, "watching new host directory failed", "path", event.Name)
			}
		}
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		// Chmod carries no content change.
		return
	}

	m.queue(ChangeEvent{Type: eventType, Path: event.Name})
}

func (m *Mirror) queue(ev ChangeEvent) {
	m.mu.Lock()
	m.pending[ev.Path] = ev
	m.mu.Unlock()

	m.batch.Call(struct{}{})
}

// apply writes one batch of host changes into the sandbox. The last event
// per path wins, and the host file's current state decides what is written.
func (m *Mirror) apply() {
	m.mu.Lock()
	events := make([]ChangeEvent, 0, len(m.pending))
	for _, ev := range m.pending {
		events = append(events, ev)
	}
	m.pending = make(map[string]ChangeEvent)
	m.mu.Unlock()

	slices.SortFunc(events, func(a, b ChangeEvent) int { return strings.Compare(a.Path, b.Path) })

	ctx := context.Background()
	for _, ev := range events {
		if err := m.applyOne(ev); err != nil {
			m.logger.Warn(ctx, err, "mirroring host change failed", "path", ev.Path, "type", ev.Type.String())
		}
	}
}

func (m *Mirror) applyOne(ev ChangeEvent) error {
	virtual := m.virtualPath(ev.Path)

	info, err := os.Stat(ev.Path)
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		err := m.target.Delete(virtual, vfs.DeleteOptions{Recursive: true})
		if stderrors.Is(err, errors.ErrFileNotFound) {
			return nil
		}
		return err
	case err != nil:
		return err
	case info.IsDir():
		return m.importDir(ev.Path)
	}

	content, ok, err := m.readHostFile(ev.Path)
	if err != nil || !ok {
		return err
	}
	if err := m.mkdirAll(vfs.Dir(virtual)); err != nil {
		return err
	}

	return m.target.WriteFile(virtual, content, vfs.WriteOptions{Create: true, Overwrite: true})
}

// importDir mirrors a directory that appeared on the host, contents included.
func (m *Mirror) importDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && !m.accept(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return m.mkdirAll(m.virtualPath(path))
		}
		content, ok, err := m.readHostFile(path)
		if err != nil || !ok {
			return err
		}
		return m.target.WriteFile(m.virtualPath(path), content, vfs.WriteOptions{Create: true, Overwrite: true})
	})
}

func (m *Mirror) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != m.root && !m.accept(path) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// readHostFile reads a regular file, reporting false for files it skips.
func (m *Mirror) readHostFile(path string) ([]byte, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	if m.maxFileSize > 0 && info.Size() > m.maxFileSize {
		m.logger.Warn(context.Background(), nil, "skipping large host file", "path", path, "size", info.Size())
		return nil, false, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}

	return content, true, nil
}

func (m *Mirror) accept(path string) bool {
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, filter := range m.filters {
		if !filter(rel) {
			return false
		}
	}

	return true
}

func (m *Mirror) virtualPath(hostPath string) string {
	rel, err := filepath.Rel(m.root, hostPath)
	if err != nil || rel == "." {
		return m.prefix
	}

	return vfs.Join(m.prefix, filepath.ToSlash(rel))
}

func (m *Mirror) mkdirAll(dir string) error {
	if dir == "/" {
		return nil
	}
	if md, err := m.target.Stat(dir); err == nil {
		if !md.IsDir() {
			return errors.FileNotADirectory(dir)
		}
		return nil
	}
	if err := m.mkdirAll(vfs.Dir(dir)); err != nil {
		return err
	}

	err := m.target.CreateDirectory(dir)
	if stderrors.Is(err, errors.ErrFileExists) {
		return nil
	}

	return err
}

// NoGitFilter skips .git directories.
func NoGitFilter(rel string) bool {
	return !hasSegment(rel, ".git")
}

// NoNodeModulesFilter skips node_modules directories.
func NoNodeModulesFilter(rel string) bool {
	return !hasSegment(rel, "node_modules")
}

// NoHiddenFilter skips dot-files and dot-directories.
func NoHiddenFilter(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return false
		}
	}

	return true
}

func hasSegment(rel, name string) bool {
	return slices.Contains(strings.Split(rel, "/"), name)
}
