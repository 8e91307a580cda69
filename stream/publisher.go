package stream

import (
	"context"
	"sync"
)

// DefaultBuffer is the publisher's default channel capacity.
const DefaultBuffer = 64

// Publisher bridges a producing research turn to a consuming front end over a
// bounded channel. It enforces the grammar Text* (Done|Error): the first
// terminal event closes the stream and every later publish is dropped.
//
// One producer and one consumer; the consumer ranges over Events until the
// channel closes.
type Publisher struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

// NewPublisher builds a publisher with the given channel capacity; zero or
// negative means DefaultBuffer.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Publisher{events: make(chan Event, buffer)}
}

// Events is the consumer side. The channel closes after the terminal event.
func (p *Publisher) Events() <-chan Event {
	return p.events
}

// Publish delivers one event in order. Events after a terminal are silently
// dropped. When the channel is full, Publish blocks until the consumer reads
// or ctx is cancelled; cancellation is the consumer-abandonment signal back
// to the producer. A terminal event always closes the channel, even when
// cancellation kept its payload out of a full buffer, so an attached consumer
// is never left waiting.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	// Buffered delivery takes priority over cancellation: with both cases
	// ready, select would drop a terminal event at random under an
	// already-cancelled context.
	select {
	case p.events <- event:
	default:
		select {
		case p.events <- event:
		case <-ctx.Done():
			if event.Terminal() {
				p.closed = true
				close(p.events)
			}
			return ctx.Err()
		}
	}

	if event.Terminal() {
		p.closed = true
		close(p.events)
	}
	return nil
}
