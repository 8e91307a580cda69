package ollama

import (
	"encoding/json"
	"fmt"

	"scout/internal/jsonschema"
	"scout/providers/ai"
)

// Wire types for /api/chat. Unlike OpenAI, Ollama sends tool call arguments
// as a JSON object rather than an encoded string, and streams NDJSON lines
// instead of SSE events.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Tools    []wireTool    `json:"tools,omitempty"`
	Options  *modelOptions `json:"options,omitempty"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"` // "function"
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type wireToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type modelOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

// chatResponse is both the synchronous response and a single NDJSON stream
// line. Streamed lines carry message deltas with done=false; the final line
// has done=true plus the token counts.
type chatResponse struct {
	Model           string      `json:"model"`
	CreatedAt       string      `json:"created_at"`
	Message         wireMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
}

func requestToWire(request ai.ChatRequest, stream bool) chatRequest {
	wire := chatRequest{
		Model:  request.Model,
		Stream: stream,
	}

	if request.SystemPrompt != "" {
		wire.Messages = append(wire.Messages, wireMessage{
			Role:    string(ai.RoleSystem),
			Content: request.SystemPrompt,
		})
	}

	for _, message := range request.Messages {
		converted := wireMessage{
			Role:    string(message.Role),
			Content: message.Content,
		}
		for _, call := range message.ToolCalls {
			var wireCall wireToolCall
			wireCall.Function.Name = call.Function.Name
			wireCall.Function.Arguments = json.RawMessage(call.Function.Arguments)
			converted.ToolCalls = append(converted.ToolCalls, wireCall)
		}
		wire.Messages = append(wire.Messages, converted)
	}

	for _, tool := range request.Tools {
		wire.Tools = append(wire.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	if config := request.GenerationConfig; config != nil {
		wire.Options = &modelOptions{
			Temperature: config.Temperature,
			TopP:        config.TopP,
			NumPredict:  config.MaxTokens,
		}
	}

	return wire
}

func responseToGeneric(wire *chatResponse) *ai.ChatResponse {
	response := &ai.ChatResponse{
		Model:        wire.Model,
		Content:      wire.Message.Content,
		FinishReason: wire.DoneReason,
	}

	for index, call := range wire.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, ai.ToolCall{
			ID:   syntheticCallID(index),
			Type: "function",
			Function: ai.ToolCallFunction{
				Name:      call.Function.Name,
				Arguments: string(call.Function.Arguments),
			},
		})
	}
	if len(response.ToolCalls) > 0 && response.FinishReason == "stop" {
		response.FinishReason = "tool_calls"
	}

	if wire.PromptEvalCount > 0 || wire.EvalCount > 0 {
		response.Usage = &ai.Usage{
			PromptTokens:     wire.PromptEvalCount,
			CompletionTokens: wire.EvalCount,
			TotalTokens:      wire.PromptEvalCount + wire.EvalCount,
		}
	}

	return response
}

// syntheticCallID gives Ollama tool calls a stable identifier; the API itself
// does not assign one, but downstream bookkeeping links results by ID.
func syntheticCallID(index int) string {
	return fmt.Sprintf("ollama_call_%d", index)
}
