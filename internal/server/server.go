// Package server hosts a sandbox workspace over HTTP: a shell page with the
// sandboxed preview frame, the WebSocket that drives it, the filesystem API
// and the change-event stream.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/sourcegraph/conc"

	"github.com/conneroisu/litterbox/internal/config"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/metrics"
	"github.com/conneroisu/litterbox/internal/preview"
	"github.com/conneroisu/litterbox/internal/version"
	"github.com/conneroisu/litterbox/internal/watcher"
	"github.com/conneroisu/litterbox/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

// PreviewServer serves one sandbox workspace with live preview.
type PreviewServer struct {
	cfg       *config.Config
	logger    logging.Logger
	hub       *Hub
	workspace *workspace.Workspace
	mirror    *watcher.Mirror

	serverMutex sync.Mutex
	httpServer  *http.Server

	done      chan struct{}
	closeOnce sync.Once
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Instance string `json:"instance"`
	Clients  int    `json:"clients"`
	Version  string `json:"version"`
	Mirror   string `json:"mirror,omitempty"`
}

// New opens the workspace, imports the mirror directory if one is
// configured, and renders the first preview. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*PreviewServer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	hub := NewHub(cfg.Server.AllowedOrigins, logger)

	opts := cfg.WorkspaceOptions(logger)
	opts.SessionOptions = append(opts.SessionOptions, preview.WithNotifier(hub))

	ws, err := workspace.Open(ctx, hub, opts)
	if err != nil {
		_ = hub.Close()
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	hub.OnMessage(ws.Session().HandleMessage)

	s := &PreviewServer{
		cfg:       cfg,
		logger:    logger.WithComponent("server"),
		hub:       hub,
		workspace: ws,
		done:      make(chan struct{}),
	}

	if dir := cfg.Sandbox.MirrorDir; dir != "" {
		mirror, err := watcher.NewMirror(dir, ws.FS(), watcher.WithLogger(logger))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("mirroring %s: %w", dir, err)
		}
		n, err := mirror.Import(ctx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("importing %s: %w", dir, err)
		}
		ws.Sync(ctx)
		s.mirror = mirror
		s.logger.Info(ctx, "imported host directory", "dir", mirror.Root(), "files", n)
	}

	return s, nil
}

// Workspace returns the served workspace.
func (s *PreviewServer) Workspace() *workspace.Workspace { return s.workspace }

// Hub returns the preview surface.
func (s *PreviewServer) Hub() *Hub { return s.hub }

// Handler returns the routed, instrumented HTTP handler.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", templ.Handler(shellPage("litterbox", s.workspace.Session().InstanceID())))
	mux.Handle("GET /ws", s.hub)
	mux.HandleFunc("GET /document", s.handleDocument)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/fs/{path...}", s.handleFSRead)
	mux.HandleFunc("PUT /api/fs/{path...}", s.handleFSWrite)
	mux.HandleFunc("DELETE /api/fs/{path...}", s.handleFSDelete)
	mux.HandleFunc("POST /api/fs/{path...}", s.handleFSOp)

	return metrics.Middleware(s.logRequests(mux))
}

// Start starts the host mirror and serves until ctx is cancelled or the
// listener fails.
func (s *PreviewServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address(), err)
	}

	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *PreviewServer) Serve(ctx context.Context, ln net.Listener) error {
	if s.mirror != nil {
		if err := s.mirror.Start(ctx); err != nil {
			_ = ln.Close()
			_ = s.Close()
			return fmt.Errorf("watching %s: %w", s.mirror.Root(), err)
		}
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	url := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "preview server listening", "url", url)
	if s.cfg.Server.Open {
		go s.openBrowser(ctx, url)
	}

	var wg conc.WaitGroup
	serveErr := make(chan error, 1)
	wg.Go(func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	})

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			wg.Wait()
			_ = s.Close()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.Shutdown(shutdownCtx)
	wg.Wait()

	return err
}

// Shutdown stops the HTTP server and releases the workspace.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	s.serverMutex.Lock()
	server := s.httpServer
	s.serverMutex.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	if cerr := s.Close(); err == nil {
		err = cerr
	}

	return err
}

// Close releases the mirror, the hub and the workspace. Safe to call more
// than once.
func (s *PreviewServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.mirror != nil {
			err = s.mirror.Stop()
		}
		_ = s.hub.Close()
		if werr := s.workspace.Close(); err == nil {
			err = werr
		}
	})

	return err
}

func (s *PreviewServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc := s.workspace.Session().Document()
	if doc == nil {
		http.Error(w, "no document composed yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(doc.HTML))
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Instance: s.workspace.Session().InstanceID(),
		Clients:  s.hub.Clients(),
		Version:  version.GetVersion(),
	}
	if s.mirror != nil {
		resp.Mirror = s.mirror.Root()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request",
			"method", r.Method,
			"path", logging.SanitizeForLog(r.URL.Path),
			"duration", time.Since(start))
	})
}

func (s *PreviewServer) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		s.logger.Warn(ctx, nil, "cannot open a browser on this platform", "os", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "failed to open browser", "url", url)
	}
}
