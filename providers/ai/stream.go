package ai

import (
	"iter"
	"strings"
)

// StreamEventType identifies the kind of delta carried by a StreamEvent.
type StreamEventType string

const (
	// StreamEventContent is a text content delta.
	StreamEventContent StreamEventType = "content"
	// StreamEventToolCall is an incremental tool call delta.
	StreamEventToolCall StreamEventType = "tool_call"
	// StreamEventUsage carries token usage, typically as the final delta.
	StreamEventUsage StreamEventType = "usage"
	// StreamEventDone signals normal stream completion.
	StreamEventDone StreamEventType = "done"
)

// ToolCallDelta is an incremental update to a streamed tool call. Index says
// which call is being updated; ID and Name arrive on the first chunk for an
// index, later chunks carry only Arguments fragments.
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamEvent is a single delta yielded during response streaming. Exactly one
// payload field is set, identified by Type.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Content      string          `json:"content,omitempty"`
	ToolCall     *ToolCallDelta  `json:"tool_call,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"` // set on StreamEventDone
}

// ChatStream wraps a streaming iterator and can accumulate deltas into a final
// ChatResponse. Callers must consume the stream, either by ranging over Iter
// (breaking early is fine) or by calling Collect; the backend may hold an open
// HTTP body that is only released when the iterator finishes or is abandoned.
type ChatStream struct {
	iterator iter.Seq2[StreamEvent, error]
}

// NewChatStream wraps a raw streaming iterator. The iterator yields events
// with a nil error for normal deltas and a non-nil error for mid-stream
// failures.
func NewChatStream(iterator iter.Seq2[StreamEvent, error]) *ChatStream {
	return &ChatStream{iterator: iterator}
}

// NewSingleEventStream presents a synchronous response as a stream: one
// content event, the tool calls, usage, then done. Used as the fallback for
// backends without streaming support.
func NewSingleEventStream(response *ChatResponse) *ChatStream {
	return NewChatStream(func(yield func(StreamEvent, error) bool) {
		if response.Content != "" {
			if !yield(StreamEvent{Type: StreamEventContent, Content: response.Content}, nil) {
				return
			}
		}

		for index, call := range response.ToolCalls {
			event := StreamEvent{
				Type: StreamEventToolCall,
				ToolCall: &ToolCallDelta{
					Index:     index,
					ID:        call.ID,
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			}
			if !yield(event, nil) {
				return
			}
		}

		if response.Usage != nil {
			if !yield(StreamEvent{Type: StreamEventUsage, Usage: response.Usage}, nil) {
				return
			}
		}

		yield(StreamEvent{Type: StreamEventDone, FinishReason: response.FinishReason}, nil)
	})
}

// Iter returns the underlying iterator for range-over-func loops.
func (stream *ChatStream) Iter() iter.Seq2[StreamEvent, error] {
	return stream.iterator
}

// Collect consumes the whole stream and returns the accumulated ChatResponse.
// A mid-stream error terminates collection and returns the partial response
// alongside the error.
func (stream *ChatStream) Collect() (*ChatResponse, error) {
	accumulated := &ChatResponse{}
	var builders []toolCallBuilder

	finalize := func() {
		for _, builder := range builders {
			accumulated.ToolCalls = append(accumulated.ToolCalls, ToolCall{
				ID:   builder.id,
				Type: "function",
				Function: ToolCallFunction{
					Name:      builder.name,
					Arguments: builder.arguments.String(),
				},
			})
		}
	}

	for event, err := range stream.iterator {
		if err != nil {
			finalize()
			return accumulated, err
		}

		switch event.Type {
		case StreamEventContent:
			accumulated.Content += event.Content
		case StreamEventToolCall:
			if event.ToolCall != nil {
				builders = accumulateToolCallDelta(builders, event.ToolCall)
			}
		case StreamEventUsage:
			accumulated.Usage = event.Usage
		case StreamEventDone:
			accumulated.FinishReason = event.FinishReason
		}
	}

	finalize()
	return accumulated, nil
}

type toolCallBuilder struct {
	id        string
	name      string
	arguments strings.Builder
}

// accumulateToolCallDelta merges a delta into the running builder list,
// growing the list when a new index appears.
func accumulateToolCallDelta(builders []toolCallBuilder, delta *ToolCallDelta) []toolCallBuilder {
	for len(builders) <= delta.Index {
		builders = append(builders, toolCallBuilder{})
	}

	builder := &builders[delta.Index]
	if delta.ID != "" {
		builder.id = delta.ID
	}
	if delta.Name != "" {
		builder.name = delta.Name
	}
	if delta.Arguments != "" {
		builder.arguments.WriteString(delta.Arguments)
	}
	return builders
}
