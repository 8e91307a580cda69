// Package stream defines the event protocol between a running research turn
// and its consumer: a small tagged union, its SSE wire framing, and a
// Publisher that enforces the event grammar Text* (Done|Error).
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrProtocol reports a malformed or out-of-grammar wire event.
var ErrProtocol = errors.New("stream protocol violation")

// EventType discriminates the event union.
type EventType string

const (
	// EventText carries one answer text delta.
	EventText EventType = "text"

	// EventDone terminates a successful stream and names the session.
	EventDone EventType = "done"

	// EventError terminates a failed stream with a human-readable message.
	EventError EventType = "error"
)

// Event is one protocol event. Exactly one payload field is meaningful,
// selected by Type.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Text builds a text delta event.
func Text(content string) Event {
	return Event{Type: EventText, Content: content}
}

// Done builds the successful terminal event.
func Done(sessionID string) Event {
	return Event{Type: EventDone, SessionID: sessionID}
}

// Error builds the failed terminal event.
func Error(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Encode writes the event as one SSE frame: "data: <json>\n\n".
func Encode(w io.Writer, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing stream frame: %w", err)
	}
	return nil
}

// Decode parses one SSE frame produced by Encode. The "data: " prefix is
// optional so raw JSON payloads decode too. Unknown event types fail with
// ErrProtocol.
func Decode(frame []byte) (Event, error) {
	payload := bytes.TrimSpace(frame)
	payload = bytes.TrimPrefix(payload, []byte("data:"))
	payload = bytes.TrimSpace(payload)

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch event.Type {
	case EventText, EventDone, EventError:
		return event, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown event type %q", ErrProtocol, event.Type)
	}
}
