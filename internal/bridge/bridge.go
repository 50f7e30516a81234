// Package bridge carries the two messages exchanged with a rendering
// surface: setCSS going out and alert coming back.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/mitchellh/mapstructure"

	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/metrics"
)

const (
	// CommandSetCSS replaces the sandbox style content. Outbound.
	CommandSetCSS = "setCSS"
	// CommandAlert reports a page alert. Inbound.
	CommandAlert = "alert"
)

// Message is the wire shape of both directions.
type Message struct {
	Command string `json:"command" mapstructure:"command"`
	Value   string `json:"value,omitempty" mapstructure:"value"`
	Text    string `json:"text,omitempty" mapstructure:"text"`
}

// Poster delivers an outbound message to the rendering surface.
type Poster interface {
	PostMessage(ctx context.Context, msg Message) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, msg Message) error

// PostMessage calls f.
func (f PosterFunc) PostMessage(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Notifier shows a non-blocking warning to the user.
type Notifier interface {
	Warn(ctx context.Context, text string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string)

// Warn calls f.
func (f NotifierFunc) Warn(ctx context.Context, text string) { f(ctx, text) }

// Bridge is one surface's message channel.
type Bridge struct {
	poster   Poster
	notifier Notifier
	logger   logging.Logger
}

// New creates a bridge. A nil notifier drops alerts.
func New(poster Poster, notifier Notifier, logger logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, string) {})
	}

	return &Bridge{
		poster:   poster,
		notifier: notifier,
		logger:   logger.WithComponent("bridge"),
	}
}

// SetCSS asks the surface to replace its sandbox style content.
func (b *Bridge) SetCSS(ctx context.Context, css string) error {
	metrics.RecordBridgeMessage("out", CommandSetCSS)

	return b.poster.PostMessage(ctx, Message{Command: CommandSetCSS, Value: css})
}

// Receive handles one decoded inbound message and reports whether it acted
// on it. Unknown commands, malformed fields and empty alerts are dropped.
func (b *Bridge) Receive(ctx context.Context, raw map[string]any) bool {
	var msg Message
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &msg,
		TagName: "mapstructure",
	})
	if err != nil {
		return false
	}
	if err := decoder.Decode(raw); err != nil {
		b.logger.Debug(ctx, "dropping malformed message", "error", err.Error())
		return false
	}

	switch msg.Command {
	case CommandAlert:
		metrics.RecordBridgeMessage("in", CommandAlert)
		if msg.Text == "" {
			return false
		}
		b.notifier.Warn(ctx, msg.Text)
		return true
	default:
		b.logger.Debug(ctx, "dropping unknown message", "command", logging.SanitizeForLog(msg.Command))
		return false
	}
}

// ReceiveJSON decodes a raw JSON frame and passes it to Receive.
func (b *Bridge) ReceiveJSON(ctx context.Context, data []byte) bool {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		b.logger.Debug(ctx, "dropping non-object frame", "error", err.Error())
		return false
	}

	return b.Receive(ctx, raw)
}
