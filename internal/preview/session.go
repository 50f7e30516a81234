// Package preview keeps the live preview of one sandbox in step with its
// three text streams.
//
// Markup and script changes recompose the whole document and replace it on
// the rendering surface. Style changes only patch the sandbox style element
// through the message bridge, which keeps page state (scroll position, form
// input, script variables) intact. The first composition is always a full
// one, whichever stream arrives first.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/litterbox/internal/bridge"
	"github.com/conneroisu/litterbox/internal/compositor"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/metrics"
)

// Surface is where composed documents are rendered.
type Surface interface {
	bridge.Poster
	SetDocument(ctx context.Context, html string) error
}

// State is the current text of the three streams.
type State struct {
	Markup string `json:"markup"`
	Style  string `json:"style"`
	Script string `json:"script"`
}

// Session is the preview state of one sandbox.
type Session struct {
	mu sync.Mutex

	compositor *compositor.Compositor
	surface    Surface
	bridge     *bridge.Bridge
	logger     logging.Logger

	state State
	doc   *compositor.Document
	built bool
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	compositor *compositor.Compositor
	notifier   bridge.Notifier
	logger     logging.Logger
}

// WithCompositor sets the compositor, and with it the instance IDs.
func WithCompositor(c *compositor.Compositor) Option {
	return func(o *sessionOptions) { o.compositor = c }
}

// WithNotifier sets where page alerts are shown.
func WithNotifier(n bridge.Notifier) Option {
	return func(o *sessionOptions) { o.notifier = n }
}

// WithLogger sets the session logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

// NewSession creates a session that has not composed anything yet.
func NewSession(surface Surface, opts ...Option) *Session {
	o := sessionOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.compositor == nil {
		o.compositor = compositor.New(compositor.WithLogger(o.logger))
	}

	return &Session{
		compositor: o.compositor,
		surface:    surface,
		bridge:     bridge.New(surface, o.notifier, o.logger),
		logger:     o.logger.WithComponent("preview"),
	}
}

// SetMarkup replaces the markup and recomposes. It always reports true.
func (s *Session) SetMarkup(ctx context.Context, markup string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Markup = markup
	s.rebuildLocked(ctx)

	return true
}

// SetScript replaces the script and recomposes. It always reports true.
func (s *Session) SetScript(ctx context.Context, script string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Script = script
	s.rebuildLocked(ctx)

	return true
}

// SetStyle replaces the style. Before the first composition it composes and
// reports true; afterwards it sends a setCSS patch and reports false.
func (s *Session) SetStyle(ctx context.Context, css string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Style = css
	if !s.built {
		s.rebuildLocked(ctx)
		return true
	}

	if err := s.bridge.SetCSS(ctx, css); err != nil {
		s.logger.Warn(ctx, err, "style patch was not delivered")
	}
	metrics.RecordStylePatch()

	return false
}

// SetState replaces all three streams and recomposes once.
func (s *Session) SetState(ctx context.Context, state State) *compositor.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state

	return s.rebuildLocked(ctx)
}

// Rebuild recomposes from the current state.
func (s *Session) Rebuild(ctx context.Context) *compositor.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rebuildLocked(ctx)
}

// Document returns the last composed document, or nil before the first.
func (s *Session) Document() *compositor.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc
}

// State returns the current stream text.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Built reports whether a full composition has happened.
func (s *Session) Built() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.built
}

// InstanceID returns the compositor instance ID.
func (s *Session) InstanceID() string {
	return s.compositor.InstanceID
}

// HandleMessage passes an inbound frame from the surface to the bridge.
func (s *Session) HandleMessage(ctx context.Context, frame []byte) bool {
	return s.bridge.ReceiveJSON(ctx, frame)
}

func (s *Session) rebuildLocked(ctx context.Context) *compositor.Document {
	start := time.Now()
	doc := s.compositor.Compose(s.state.Markup, s.state.Style, s.state.Script)
	metrics.RecordRebuild(time.Since(start))

	s.doc = doc
	s.built = true

	if err := s.surface.SetDocument(ctx, doc.HTML); err != nil {
		s.logger.Warn(ctx, err, "composed document was not delivered")
	}
	s.logger.Debug(ctx, "preview rebuilt", "bytes", len(doc.HTML), "duration", time.Since(start))

	return doc
}
