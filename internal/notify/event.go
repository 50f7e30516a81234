package notify

import (
	"fmt"
	"strings"
)

// EventType represents the kind of mutation a change event describes.
// The numeric values follow the host file-change contract.
type EventType int

const (
	EventTypeChanged EventType = iota + 1
	EventTypeCreated
	EventTypeDeleted
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeChanged:
		return "changed"
	case EventTypeCreated:
		return "created"
	case EventTypeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type by name for JSON event streams.
func (e EventType) MarshalText() ([]byte, error) {
	if e < EventTypeChanged || e > EventTypeDeleted {
		return nil, fmt.Errorf("notify: invalid event type %d", int(e))
	}

	return []byte(e.String()), nil
}

// UnmarshalText decodes a type name.
func (e *EventType) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "changed":
		*e = EventTypeChanged
	case "created":
		*e = EventTypeCreated
	case "deleted":
		*e = EventTypeDeleted
	default:
		return fmt.Errorf("notify: unknown event type %q", string(text))
	}

	return nil
}

// Event is one mutation record: what happened to which virtual path.
type Event struct {
	Type EventType `json:"type"`
	Path string    `json:"path"`
}

// Created builds a Created event.
func Created(path string) Event { return Event{Type: EventTypeCreated, Path: path} }

// Changed builds a Changed event.
func Changed(path string) Event { return Event{Type: EventTypeChanged, Path: path} }

// Deleted builds a Deleted event.
func Deleted(path string) Event { return Event{Type: EventTypeDeleted, Path: path} }

// Emitter accepts events as they occur. The node store enqueues through it.
type Emitter interface {
	Emit(events ...Event)
}

// Observer receives one flushed batch. The slice is owned by the observer.
type Observer func(events []Event)
