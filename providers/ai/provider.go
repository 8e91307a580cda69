// Package ai defines the provider-neutral chat model: requests, responses,
// streaming events, and the interfaces a language model backend implements.
// Concrete backends live in subpackages (openai, ollama).
package ai

import "context"

// Provider is the interface every language model backend satisfies. It covers
// a single request/response exchange; conversation state is the caller's
// concern and travels in ChatRequest.Messages.
type Provider interface {
	// SendMessage sends a chat request and returns the completed response.
	// Returns an error if the call fails, the context is cancelled, or the
	// response cannot be decoded.
	SendMessage(ctx context.Context, request ChatRequest) (*ChatResponse, error)

	// IsStopMessage reports whether the response is a terminal completion,
	// meaning the model has nothing more to say and requested no tool
	// calls. Each backend maps its own finish-reason vocabulary.
	IsStopMessage(response *ChatResponse) bool
}

// StreamProvider is implemented by backends that support incremental
// responses. Callers detect support via type assertion and fall back to
// SendMessage wrapped in [NewSingleEventStream] otherwise.
type StreamProvider interface {
	Provider

	// StreamMessage sends a chat request and returns a ChatStream yielding
	// deltas as they arrive. Pre-stream failures (auth, bad request,
	// unreachable host) are returned as a normal error; mid-stream failures
	// come through the iterator.
	StreamMessage(ctx context.Context, request ChatRequest) (*ChatStream, error)
}
