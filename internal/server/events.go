package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/conneroisu/litterbox/internal/notify"
)

const eventBufferSize = 32

// handleEvents streams change-event batches for one watch scope. Each
// flushed batch that touches the scope is sent as one JSON array.
func (s *PreviewServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "event stream upgrade failed")
		return
	}
	defer conn.CloseNow()

	bus := s.workspace.Bus()
	watch := bus.Watch(path, recursive)
	defer watch.Dispose()

	batches := make(chan []notify.Event, eventBufferSize)
	sub := bus.Subscribe(func(events []notify.Event) {
		var scoped []notify.Event
		for _, ev := range events {
			if watch.Covers(ev.Path) {
				scoped = append(scoped, ev)
			}
		}
		if len(scoped) == 0 {
			return
		}
		select {
		case batches <- scoped:
		default:
			s.logger.Warn(context.Background(), nil, "event stream is behind, dropping batch", "path", watch.Path())
		}
	})
	defer sub.Close()

	ctx := conn.CloseRead(r.Context())
	s.logger.Debug(ctx, "event stream opened", "path", watch.Path(), "recursive", recursive)

	for {
		select {
		case batch := <-batches:
			data, err := json.Marshal(batch)
			if err != nil {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		case <-s.done:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}
