package openai

import (
	"encoding/json"

	"scout/internal/jsonschema"
	"scout/providers/ai"
)

// Wire types for the /v1/chat/completions endpoint, request and response.
// Pointer fields distinguish "absent" from zero on the wire.

type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     *int           `json:"max_completion_tokens,omitempty"`
	Stream        *bool          `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Tools         []chatTool     `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"` // "function"
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "function"
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"` // "chat.completion"
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
}

type chatResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatCompletionStreamChunk is a single SSE chunk when stream=true. The usage
// chunk arrives last with empty choices when stream_options.include_usage is
// set.
type chatCompletionStreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"` // "chat.completion.chunk"
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
	Usage   *chatUsage     `json:"usage,omitempty"`
}

type streamChoice struct {
	Index        int         `json:"index"`
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"` // nil until the final chunk for this choice
}

type streamDelta struct {
	Role      string               `json:"role,omitempty"`
	Content   *string              `json:"content,omitempty"`
	ToolCalls []streamToolCallPart `json:"tool_calls,omitempty"`
}

type streamToolCallPart struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

func unmarshalStreamChunk(data string) (*chatCompletionStreamChunk, error) {
	var chunk chatCompletionStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// requestToWire converts a provider-neutral request into the chat completions
// wire format. The system prompt becomes the leading system message.
func requestToWire(request ai.ChatRequest, stream bool) chatCompletionRequest {
	wire := chatCompletionRequest{Model: request.Model}

	if request.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, chatMessage{
			Role:    string(ai.RoleSystem),
			Content: request.SystemPrompt,
		})
	}

	for _, message := range request.Messages {
		wireMessage := chatMessage{
			Role:       string(message.Role),
			Content:    message.Content,
			Name:       message.Name,
			ToolCallID: message.ToolCallID,
		}
		for _, call := range message.ToolCalls {
			wireCall := chatToolCall{ID: call.ID, Type: call.Type}
			wireCall.Function.Name = call.Function.Name
			wireCall.Function.Arguments = call.Function.Arguments
			wireMessage.ToolCalls = append(wireMessage.ToolCalls, wireCall)
		}
		wire.Messages = append(wire.Messages, wireMessage)
	}

	if config := request.GenerationConfig; config != nil {
		if config.Temperature > 0 {
			temperature := float64(config.Temperature)
			wire.Temperature = &temperature
		}
		if config.TopP > 0 {
			topP := float64(config.TopP)
			wire.TopP = &topP
		}
		if config.MaxTokens > 0 {
			maxTokens := config.MaxTokens
			wire.MaxTokens = &maxTokens
		}
	}

	if len(request.Tools) > 0 {
		for _, tool := range request.Tools {
			wire.Tools = append(wire.Tools, chatTool{
				Type: "function",
				Function: chatFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			})
		}
		wire.ToolChoice = "auto"
	}

	if stream {
		enabled := true
		wire.Stream = &enabled
		wire.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	return wire
}

// responseToGeneric converts a wire response into the provider-neutral form.
// The caller guarantees at least one choice.
func responseToGeneric(wire *chatCompletionResponse) *ai.ChatResponse {
	choice := wire.Choices[0]

	response := &ai.ChatResponse{
		Id:           wire.ID,
		Model:        wire.Model,
		Created:      wire.Created,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}

	for _, call := range choice.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, ai.ToolCall{
			ID:   call.ID,
			Type: call.Type,
			Function: ai.ToolCallFunction{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}

	if wire.Usage != nil {
		response.Usage = &ai.Usage{
			PromptTokens:     wire.Usage.PromptTokens,
			CompletionTokens: wire.Usage.CompletionTokens,
			TotalTokens:      wire.Usage.TotalTokens,
		}
	}

	return response
}
