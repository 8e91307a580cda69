// Package ollama implements the ai.Provider interfaces against a local
// Ollama server's /api/chat endpoint. Streaming uses Ollama's NDJSON framing
// rather than SSE.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"scout/internal/utils"
	"scout/providers/ai"
)

const (
	defaultBaseURL = "http://localhost:11434"
	chatEndpoint   = "/api/chat"
)

// Provider talks to a local Ollama server. Construct with [New].
type Provider struct {
	baseURL string
	client  *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at a non-default Ollama server.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for outbound requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// New creates an Ollama provider. The base URL defaults to OLLAMA_HOST when
// set, otherwise localhost:11434. No API key is needed.
func New(opts ...Option) *Provider {
	provider := &Provider{
		baseURL: os.Getenv("OLLAMA_HOST"),
		client:  &http.Client{},
	}
	if provider.baseURL == "" {
		provider.baseURL = defaultBaseURL
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider
}

// SendMessage implements ai.Provider.
func (p *Provider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	wireRequest := requestToWire(request, false)

	httpResponse, wireResponse, err := utils.DoPostSync[chatResponse](ctx, p.client, p.baseURL+chatEndpoint, "", wireRequest)
	if err != nil {
		return nil, err
	}
	if wireResponse == nil {
		return nil, fmt.Errorf("ollama: empty response: %s", httpResponse.Status)
	}

	return responseToGeneric(wireResponse), nil
}

// IsStopMessage implements ai.Provider using Ollama done-reason semantics.
func (p *Provider) IsStopMessage(response *ai.ChatResponse) bool {
	if response == nil {
		return true
	}
	if len(response.ToolCalls) > 0 {
		return false
	}
	switch response.FinishReason {
	case "stop", "length", "load":
		return true
	}
	return response.Content == ""
}
