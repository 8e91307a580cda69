package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"scout/internal/utils"
	"scout/providers/ai"
)

// maxStreamLineSize bounds a single NDJSON line (1 MB).
const maxStreamLineSize = 1024 * 1024

// StreamMessage implements ai.StreamProvider over /api/chat with stream=true.
// Ollama streams newline-delimited JSON objects, one message delta per line,
// ending with a done=true line that carries the token counts.
func (p *Provider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	wireRequest := requestToWire(request, true)

	httpResponse, err := utils.DoPostStream(ctx, p.client, p.baseURL+chatEndpoint, "", wireRequest)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(httpResponse.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		defer utils.CloseWithLog(httpResponse.Body)

		toolCallIndex := 0
		for scanner.Scan() {
			if ctx.Err() != nil {
				yield(ai.StreamEvent{}, ctx.Err())
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				yield(ai.StreamEvent{}, fmt.Errorf("ollama: malformed stream line: %w", err))
				return
			}

			if chunk.Message.Content != "" {
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: chunk.Message.Content}, nil) {
					return
				}
			}

			// Ollama delivers each tool call whole in a single line.
			for _, call := range chunk.Message.ToolCalls {
				event := ai.StreamEvent{
					Type: ai.StreamEventToolCall,
					ToolCall: &ai.ToolCallDelta{
						Index:     toolCallIndex,
						ID:        syntheticCallID(toolCallIndex),
						Name:      call.Function.Name,
						Arguments: string(call.Function.Arguments),
					},
				}
				toolCallIndex++
				if !yield(event, nil) {
					return
				}
			}

			if chunk.Done {
				if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
					usage := &ai.Usage{
						PromptTokens:     chunk.PromptEvalCount,
						CompletionTokens: chunk.EvalCount,
						TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
					}
					if !yield(ai.StreamEvent{Type: ai.StreamEventUsage, Usage: usage}, nil) {
						return
					}
				}

				finishReason := chunk.DoneReason
				if toolCallIndex > 0 && (finishReason == "" || finishReason == "stop") {
					finishReason = "tool_calls"
				}
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: finishReason}, nil)
				return
			}
		}

		if err := scanner.Err(); err != nil && err != io.EOF {
			yield(ai.StreamEvent{}, fmt.Errorf("ollama: stream read error: %w", err))
		}
	}), nil
}
