// Package openai implements the ai.Provider interfaces against the OpenAI
// chat completions API. Any OpenAI-compatible endpoint works by overriding the
// base URL.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"scout/internal/utils"
	"scout/providers/ai"
)

const (
	defaultBaseURL          = "https://api.openai.com/v1"
	chatCompletionsEndpoint = "/chat/completions"
)

// Provider talks to the OpenAI chat completions API. Construct with [New].
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures a Provider.
type Option func(*Provider)

// WithAPIKey overrides the API key taken from OPENAI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) {
		if apiKey != "" {
			p.apiKey = apiKey
		}
	}
}

// WithBaseURL points the provider at an OpenAI-compatible endpoint.
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

// New creates an OpenAI provider. Defaults come from the environment:
// OPENAI_API_KEY for the key, OPENAI_API_BASE_URL for the endpoint.
func New(opts ...Option) *Provider {
	provider := &Provider{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: os.Getenv("OPENAI_API_BASE_URL"),
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
	if p.apiKey == "" {
		return nil, fmt.Errorf("openai: API key is not set")
	}

	wireRequest := requestToWire(request, false)

	httpResponse, wireResponse, err := utils.DoPostSync[chatCompletionResponse](ctx, p.client, p.baseURL+chatCompletionsEndpoint, p.apiKey, wireRequest)
	if err != nil {
		return nil, err
	}
	if wireResponse == nil {
		return nil, fmt.Errorf("openai: empty response: %s", httpResponse.Status)
	}
	if len(wireResponse.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}

	return responseToGeneric(wireResponse), nil
}

// IsStopMessage implements ai.Provider using OpenAI finish-reason semantics.
func (p *Provider) IsStopMessage(response *ai.ChatResponse) bool {
	if response == nil {
		return true
	}
	switch response.FinishReason {
	case "stop", "length", "content_filter":
		return true
	}
	// No content and no tool calls leaves the loop nothing to do.
	return response.Content == "" && len(response.ToolCalls) == 0
}
