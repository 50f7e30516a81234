// Package workspace assembles one sandbox: the virtual filesystem, its
// change bus and the live preview fed from three document files.
package workspace

import (
	"cmp"
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/conneroisu/litterbox/internal/debounce"
	"github.com/conneroisu/litterbox/internal/errors"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/notify"
	"github.com/conneroisu/litterbox/internal/preview"
	"github.com/conneroisu/litterbox/internal/vfs"
)

// Stream names one of the three document streams.
type Stream int

const (
	StreamMarkup Stream = iota
	StreamStyle
	StreamScript
)

// String returns the string representation of the Stream
func (s Stream) String() string {
	switch s {
	case StreamMarkup:
		return "markup"
	case StreamStyle:
		return "style"
	case StreamScript:
		return "script"
	default:
		return "unknown"
	}
}

// Options configures a Workspace.
type Options struct {
	MarkupFile  string
	StyleFile   string
	ScriptFile  string
	ScratchFile string

	// Seed writes starter documents and the scratch file on Open.
	Seed bool

	QuietPeriod  time.Duration
	FlushQuantum time.Duration

	SessionOptions []preview.Option
	Logger         logging.Logger
}

// DefaultOptions returns the standard sandbox layout.
func DefaultOptions() Options {
	return Options{
		MarkupFile:   "/index.html",
		StyleFile:    "/style.css",
		ScriptFile:   "/script.js",
		ScratchFile:  "/file.txt",
		Seed:         true,
		QuietPeriod:  300 * time.Millisecond,
		FlushQuantum: notify.DefaultQuantum,
	}
}

// Starter content written by Seed.
const (
	StarterMarkup = `<!DOCTYPE html>
<html lang="en">
  <body>
    <h1>Hello, litterbox</h1>
    <button onclick="alert('hi from the sandbox')">alert</button>
  </body>
</html>
`
	StarterStyle = `body {
  font-family: system-ui, sans-serif;
}
`
	StarterScript = `console.log("sandbox ready");
`
	ScratchContent = "foo"
)

// Workspace owns the filesystem, bus and preview session of one sandbox.
type Workspace struct {
	fs      *vfs.Provider
	bus     *notify.Bus
	session *preview.Session
	logger  logging.Logger

	paths   map[string]Stream
	files   map[Stream]string
	watch   *notify.Watch
	sub     *notify.Subscription
	pending *debounce.Group[Stream, notify.Event]
	opts    Options
}

// Open creates the sandbox, seeds it if asked and renders the first preview.
// Seed failures are logged and skipped; Open only fails on invalid options.
func Open(ctx context.Context, surface preview.Surface, opts Options) (*Workspace, error) {
	defaults := DefaultOptions()
	if opts.QuietPeriod < 0 {
		return nil, errors.NewValidationError("invalid_quiet_period", "quiet period must not be negative")
	}
	if opts.FlushQuantum <= 0 {
		opts.FlushQuantum = defaults.FlushQuantum
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	files := map[Stream]string{
		StreamMarkup: cmp.Or(opts.MarkupFile, defaults.MarkupFile),
		StreamStyle:  cmp.Or(opts.StyleFile, defaults.StyleFile),
		StreamScript: cmp.Or(opts.ScriptFile, defaults.ScriptFile),
	}
	for stream, p := range files {
		cleaned, err := vfs.Clean(p)
		if err != nil {
			return nil, errors.NewValidationError("invalid_document_path", stream.String()+" file must be an absolute path: "+p)
		}
		files[stream] = cleaned
	}

	paths := make(map[string]Stream, len(files))
	for stream, p := range files {
		if _, dup := paths[p]; dup {
			return nil, errors.NewValidationError("duplicate_document_path", "document files must be distinct: "+p)
		}
		paths[p] = stream
	}

	logger := opts.Logger.WithComponent("workspace")
	bus := notify.NewBus(notify.WithQuantum(opts.FlushQuantum), notify.WithLogger(opts.Logger))
	sessionOpts := append([]preview.Option{preview.WithLogger(opts.Logger)}, opts.SessionOptions...)

	ws := &Workspace{
		fs:      vfs.NewProvider(bus, opts.Logger),
		bus:     bus,
		session: preview.NewSession(surface, sessionOpts...),
		logger:  logger,
		paths:   paths,
		files:   files,
		opts:    opts,
	}
	ws.pending = debounce.NewGroup(opts.QuietPeriod, ws.apply)
	ws.sub = bus.Subscribe(ws.route)
	ws.watch = ws.fs.Watch("/", true)

	if opts.Seed {
		ws.Seed(ctx)
	}
	ws.Sync(ctx)

	logger.Info(ctx, "workspace opened",
		"instance", ws.session.InstanceID(),
		"markup", files[StreamMarkup], "style", files[StreamStyle], "script", files[StreamScript])

	return ws, nil
}

// Seed writes the starter documents and scratch file. Files that already
// exist are kept; every failure is logged and skipped.
func (w *Workspace) Seed(ctx context.Context) {
	seeds := []seedFile{
		{w.files[StreamMarkup], StarterMarkup},
		{w.files[StreamStyle], StarterStyle},
		{w.files[StreamScript], StarterScript},
	}
	if w.opts.ScratchFile != "" {
		seeds = append(seeds, seedFile{w.opts.ScratchFile, ScratchContent})
	}

	for _, seed := range seeds {
		if err := w.writeSeed(seed.path, seed.content); err != nil {
			w.logger.Warn(ctx, err, "skipping seed file", "path", seed.path)
		}
	}
}

type seedFile struct {
	path    string
	content string
}

func (w *Workspace) writeSeed(path, content string) error {
	if dir := vfs.Dir(path); dir != "/" {
		if err := w.mkdirAll(dir); err != nil {
			return err
		}
	}

	return w.fs.WriteFile(path, []byte(content), vfs.WriteOptions{Create: true})
}

func (w *Workspace) mkdirAll(dir string) error {
	if md, err := w.fs.Stat(dir); err == nil {
		if !md.IsDir() {
			return errors.FileNotADirectory(dir)
		}
		return nil
	}
	if parent := vfs.Dir(dir); parent != "/" {
		if err := w.mkdirAll(parent); err != nil {
			return err
		}
	}

	err := w.fs.CreateDirectory(dir)
	if stderrors.Is(err, errors.ErrFileExists) {
		return nil
	}

	return err
}

// Sync reads all three documents and recomposes once. Buffered events are
// delivered first and the debounced updates they scheduled are dropped,
// since the recomposition already covers them.
func (w *Workspace) Sync(ctx context.Context) {
	w.bus.Flush()
	for stream := range w.files {
		w.pending.Cancel(stream)
	}

	w.session.SetState(ctx, preview.State{
		Markup: w.read(ctx, StreamMarkup),
		Style:  w.read(ctx, StreamStyle),
		Script: w.read(ctx, StreamScript),
	})
}

// Flush delivers buffered change events and runs pending debounced updates
// immediately.
func (w *Workspace) Flush() {
	w.bus.Flush()
	w.pending.FlushAll()
}

// FS returns the sandbox filesystem.
func (w *Workspace) FS() *vfs.Provider { return w.fs }

// Bus returns the change bus.
func (w *Workspace) Bus() *notify.Bus { return w.bus }

// Session returns the preview session.
func (w *Workspace) Session() *preview.Session { return w.session }

// DocumentPath returns the virtual path backing a stream.
func (w *Workspace) DocumentPath(stream Stream) string { return w.files[stream] }

// Close releases the watch, the subscription and pending timers.
func (w *Workspace) Close() error {
	w.pending.Stop()
	w.sub.Close()
	w.watch.Dispose()
	w.bus.Close()

	return nil
}

// route runs on the bus flush and schedules updates for touched documents.
// Subtree deletes and renames report only the subtree root, so a created or
// deleted ancestor also touches every document below it.
func (w *Workspace) route(events []notify.Event) {
	for _, ev := range events {
		if stream, ok := w.paths[ev.Path]; ok {
			w.pending.Call(stream, ev)
			continue
		}
		if ev.Type == notify.EventTypeChanged {
			continue
		}
		for stream, file := range w.files {
			if isAncestor(ev.Path, file) {
				w.pending.Call(stream, ev)
			}
		}
	}
}

func isAncestor(dir, path string) bool {
	if dir == "/" {
		return path != "/"
	}
	return strings.HasPrefix(path, dir+"/")
}

// apply runs once a stream has been quiet for the quiet period. cause is the
// last event that touched the stream.
func (w *Workspace) apply(stream Stream, cause notify.Event) {
	ctx := context.Background()
	text := w.read(ctx, stream)

	var rebuilt bool
	switch stream {
	case StreamMarkup:
		rebuilt = w.session.SetMarkup(ctx, text)
	case StreamStyle:
		rebuilt = w.session.SetStyle(ctx, text)
	case StreamScript:
		rebuilt = w.session.SetScript(ctx, text)
	}

	w.logger.Debug(ctx, "document updated",
		"stream", stream.String(), "cause", cause.Type.String(), "path", cause.Path, "rebuilt", rebuilt)
}

// read returns a document's text; a missing or unreadable file reads as empty.
func (w *Workspace) read(ctx context.Context, stream Stream) string {
	data, err := w.fs.ReadFile(w.files[stream])
	if err != nil {
		if !stderrors.Is(err, errors.ErrFileNotFound) {
			w.logger.Warn(ctx, err, "reading document failed", "stream", stream.String())
		}
		return ""
	}

	return string(data)
}
