package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sourcegraph/conc"

	"github.com/conneroisu/litterbox/internal/bridge"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/metrics"
)

// Commands sent from the server to the shell page.
const (
	CommandSetDocument = "setDocument"
	CommandWarning     = "warning"
)

const (
	sendBufferSize = 64
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Frame is the JSON shape of every message on /ws.
type Frame struct {
	Command string `json:"command"`
	HTML    string `json:"html,omitempty"`
	Value   string `json:"value,omitempty"`
	Text    string `json:"text,omitempty"`
}

// MessageHandler receives inbound frames from a shell page.
type MessageHandler func(ctx context.Context, frame []byte) bool

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type outbound struct {
	data     []byte
	document *string
}

// Hub is the rendering surface of a preview session. Composed documents and
// style patches are fanned out to every connected shell page; new pages get
// the latest document as soon as they connect.
//
// Client registration, removal and fan-out all happen on the hub goroutine.
// Only that goroutine sends to or closes a client's send channel.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan outbound

	mu       sync.RWMutex
	document string
	handler  MessageHandler
	count    int

	origins []string
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	once   sync.Once
}

// NewHub starts a hub. originPatterns are passed to websocket.Accept; the
// request host is always allowed.
func NewHub(originPatterns []string, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, 256),
		origins:    originPatterns,
		logger:     logger.WithComponent("hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
	h.wg.Go(h.run)

	return h
}

// OnMessage sets the handler for inbound frames.
func (h *Hub) OnMessage(fn MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

// SetDocument caches html as the current document and sends it to every
// connected page.
func (h *Hub) SetDocument(ctx context.Context, html string) error {
	data, err := json.Marshal(Frame{Command: CommandSetDocument, HTML: html})
	if err != nil {
		return err
	}

	return h.enqueue(ctx, outbound{data: data, document: &html})
}

// PostMessage sends a bridge message to every connected page.
func (h *Hub) PostMessage(ctx context.Context, msg bridge.Message) error {
	data, err := json.Marshal(Frame{Command: msg.Command, Value: msg.Value, Text: msg.Text})
	if err != nil {
		return err
	}

	return h.enqueue(ctx, outbound{data: data})
}

// Warn shows text as a warning on every connected page.
func (h *Hub) Warn(ctx context.Context, text string) {
	data, err := json.Marshal(Frame{Command: CommandWarning, Text: text})
	if err != nil {
		return
	}
	if err := h.enqueue(ctx, outbound{data: data}); err != nil {
		h.logger.Warn(ctx, err, "warning was not delivered")
	}
}

// Document returns the last document passed to SetDocument.
func (h *Hub) Document() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.document
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) enqueue(ctx context.Context, msg outbound) error {
	if msg.document != nil {
		h.mu.Lock()
		h.document = *msg.document
		h.mu.Unlock()
	}

	select {
	case h.broadcast <- msg:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeHTTP upgrades the request and serves one shell page until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	h.wg.Go(func() { h.writePump(c) })
	h.readPump(c)

	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Close disconnects every page and waits for the hub goroutines to exit.
func (h *Hub) Close() error {
	h.once.Do(func() {
		h.cancel()
		h.wg.Wait()
	})

	return nil
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.setCount(len(h.clients))
			if doc := h.Document(); doc != "" {
				data, err := json.Marshal(Frame{Command: CommandSetDocument, HTML: doc})
				if err == nil {
					c.send <- data
				}
			}
			h.logger.Debug(h.ctx, "client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn(h.ctx, nil, "dropping slow client")
					h.drop(c)
				}
			}

		case <-h.ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.setCount(len(h.clients))
	h.logger.Debug(h.ctx, "client disconnected", "clients", len(h.clients))
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
	metrics.SetWebSocketClients(n)
}

func (h *Hub) readPump(c *client) {
	for {
		typ, data, err := c.conn.Read(h.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "websocket read ended", "error", err.Error())
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()
		if handler != nil {
			handler(h.ctx, data)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "websocket write failed", "error", err.Error())
				c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.conn.CloseNow()
				return
			}
		}
	}
}
