// Package orchestrator drives the research turn loop: it sends the
// conversation to the model, interprets the response, dispatches requested
// tool calls through the registry, and repeats until the model produces a
// final answer or the turn budget runs out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"scout/providers/ai"
	"scout/providers/tool"
)

// DefaultTurnBudget is the maximum number of model rounds per run.
const DefaultTurnBudget = 10

// abortedAnswer is the synthetic assistant turn appended when the turn budget
// runs out without a final answer.
const abortedAnswer = "I was unable to complete the research within the allotted number of turns."

var (
	// ErrModelUnavailable wraps a model backend failure. Terminal for the
	// current run.
	ErrModelUnavailable = errors.New("model backend unavailable")

	// ErrTurnLimitExceeded is returned when the turn budget is exhausted
	// without a final answer.
	ErrTurnLimitExceeded = errors.New("turn limit exceeded")
)

// state is the turn loop's position. Terminal states have no outgoing
// transitions.
type state int

const (
	stateAwaitingModel state = iota
	stateInterpretingResponse
	stateDispatchingTool
	stateFinished
	stateAborted
)

// Sink receives incremental answer text as the model produces it. A nil Sink
// is valid and discards deltas.
type Sink func(delta string)

// Result is the outcome of one completed run.
type Result struct {
	// Answer is the model's final text.
	Answer string
	// Turns are the messages produced by this run in append order: the user
	// message, each assistant round, and each tool-result turn. The caller
	// owns persisting them.
	Turns []ai.Message
	// Usage aggregates token consumption across all model rounds.
	Usage ai.Usage
	// Rounds is the number of model rounds consumed.
	Rounds int
}

// Orchestrator runs the turn loop. It is stateless across runs; conversation
// history is supplied per call, so one Orchestrator serves all sessions.
type Orchestrator struct {
	provider     ai.Provider
	send         SendFunc
	stream       StreamFunc
	registry     *tool.Registry
	middlewares  []MiddlewareConfig
	model        string
	systemPrompt string
	turnBudget   int
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModel sets the model identifier sent to the backend.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// WithSystemPrompt sets the system prompt prepended to every request.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithTurnBudget overrides the maximum number of model rounds.
func WithTurnBudget(budget int) Option {
	return func(o *Orchestrator) {
		if budget > 0 {
			o.turnBudget = budget
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMiddleware appends middleware entries to both provider call chains, in
// outermost-first order.
func WithMiddleware(configs ...MiddlewareConfig) Option {
	return func(o *Orchestrator) {
		o.middlewares = append(o.middlewares, configs...)
	}
}

// New builds an orchestrator over a model provider and a tool registry.
func New(provider ai.Provider, registry *tool.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:   provider,
		registry:   registry,
		turnBudget: DefaultTurnBudget,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.send = buildSendChain(provider, o.middlewares)
	o.stream = buildStreamChain(provider, o.middlewares)
	return o
}

// Run executes one turn loop over the supplied history plus the new user
// message. Incremental answer text flows to sink as it arrives. The returned
// Result carries the messages to append to the session. On model failure or
// cancellation nothing partial is returned and the caller appends nothing; on
// ErrTurnLimitExceeded the Result is still populated, closed by a synthetic
// assistant turn.
func (o *Orchestrator) Run(ctx context.Context, history []ai.Message, userMessage string, sink Sink) (*Result, error) {
	// A nil sink selects the synchronous send chain; retry middleware only
	// covers synchronous calls, so non-streaming callers keep that coverage.
	streaming := sink != nil
	if sink == nil {
		sink = func(string) {}
	}

	result := &Result{
		Turns: []ai.Message{{Role: ai.RoleUser, Content: userMessage}},
	}
	conversation := append(append([]ai.Message{}, history...), result.Turns...)

	current := stateAwaitingModel
	var response *ai.ChatResponse

	for {
		switch current {
		case stateAwaitingModel:
			if result.Rounds == o.turnBudget {
				current = stateAborted
				continue
			}
			result.Rounds++

			var err error
			response, err = o.modelRound(ctx, conversation, sink, streaming)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
			}
			accumulateUsage(&result.Usage, response.Usage)
			current = stateInterpretingResponse

		case stateInterpretingResponse:
			assistant := response.AssistantMessage()
			result.Turns = append(result.Turns, assistant)
			conversation = append(conversation, assistant)

			if len(response.ToolCalls) > 0 && !o.provider.IsStopMessage(response) {
				current = stateDispatchingTool
			} else {
				current = stateFinished
			}

		case stateDispatchingTool:
			outcomes, err := o.dispatchRound(ctx, response.ToolCalls)
			if err != nil {
				// Cancellation mid-dispatch: discard the round, append no
				// partial tool-result turns.
				return nil, err
			}
			for _, outcome := range outcomes {
				message := outcome.Message()
				result.Turns = append(result.Turns, message)
				conversation = append(conversation, message)
			}
			current = stateAwaitingModel

		case stateFinished:
			result.Answer = response.Content
			o.logger.Debug("run finished",
				"rounds", result.Rounds,
				"turns", len(result.Turns),
				"tokens", result.Usage.TotalTokens)
			return result, nil

		case stateAborted:
			// The synthetic answer is still a well-formed assistant turn, so
			// callers that persist the result keep a consistent history.
			result.Answer = abortedAnswer
			result.Turns = append(result.Turns, ai.Message{Role: ai.RoleAssistant, Content: abortedAnswer})
			o.logger.Warn("run aborted: turn budget exhausted", "budget", o.turnBudget)
			return result, fmt.Errorf("%w: no final answer after %d rounds", ErrTurnLimitExceeded, o.turnBudget)
		}
	}
}

// modelRound performs one model call, forwarding text deltas to the sink and
// accumulating the full response. Non-streaming rounds go through the send
// chain directly.
func (o *Orchestrator) modelRound(ctx context.Context, conversation []ai.Message, sink Sink, streaming bool) (*ai.ChatResponse, error) {
	request := ai.ChatRequest{
		Model:        o.model,
		SystemPrompt: o.systemPrompt,
		Messages:     conversation,
		Tools:        o.registry.Descriptions(),
	}

	if !streaming {
		return o.send(ctx, request)
	}

	stream, err := o.stream(ctx, request)
	if err != nil {
		return nil, err
	}

	tapped := ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		for event, err := range stream.Iter() {
			if err == nil && event.Type == ai.StreamEventContent {
				sink(event.Content)
			}
			if !yield(event, err) {
				return
			}
		}
	})

	response, err := tapped.Collect()
	if err != nil {
		return nil, err
	}
	return response, nil
}

// dispatchRound invokes all tool calls of one round concurrently and returns
// their outcomes in request order. Outcomes are never dropped; tool failures
// are carried inside the outcome, not as a Go error. The only error return is
// context cancellation.
func (o *Orchestrator) dispatchRound(ctx context.Context, calls []ai.ToolCall) ([]tool.Outcome, error) {
	outcomes := make([]tool.Outcome, len(calls))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		group.Go(func() error {
			outcomes[i] = o.registry.Invoke(groupCtx, tool.Invocation{
				CallID:    call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
			return nil
		})
	}
	// Invoke never returns an error through the group; Wait only observes
	// context cancellation.
	_ = group.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return outcomes, nil
}

func accumulateUsage(total *ai.Usage, round *ai.Usage) {
	if round == nil {
		return
	}
	total.PromptTokens += round.PromptTokens
	total.CompletionTokens += round.CompletionTokens
	total.TotalTokens += round.TotalTokens
}
