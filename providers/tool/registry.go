package tool

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"scout/providers/ai"
)

const (
	// DefaultInvokeTimeout bounds a single tool invocation.
	DefaultInvokeTimeout = 30 * time.Second

	// retryBackoff is the pause before the single retry of a transient
	// network failure.
	retryBackoff = 500 * time.Millisecond
)

// Registry holds the closed set of capabilities the orchestrator may
// dispatch. The set is fixed at construction; there is no registration after
// startup, so lookups need no locking.
type Registry struct {
	tools   map[string]GenericTool
	order   []string
	timeout time.Duration
	logger  *slog.Logger

	// sleep is replaceable in tests to skip the retry backoff.
	sleep func(time.Duration)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithInvokeTimeout overrides the per-invocation timeout.
func WithInvokeTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithLogger sets the structured logger for invocation records.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry builds a registry over a fixed tool set. Later tools with a
// duplicate name silently lose to earlier ones.
func NewRegistry(tools []GenericTool, opts ...RegistryOption) *Registry {
	registry := &Registry{
		tools:   make(map[string]GenericTool, len(tools)),
		timeout: DefaultInvokeTimeout,
		logger:  slog.Default(),
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(registry)
	}

	for _, t := range tools {
		name := t.Info().Name
		if _, exists := registry.tools[name]; exists {
			continue
		}
		registry.tools[name] = t
		registry.order = append(registry.order, name)
	}
	return registry
}

// Descriptions returns the tool metadata advertised to the model, in
// registration order.
func (r *Registry) Descriptions() []ai.ToolDescription {
	descriptions := make([]ai.ToolDescription, 0, len(r.order))
	for _, name := range r.order {
		descriptions = append(descriptions, r.tools[name].Info())
	}
	return descriptions
}

// Invocation is one tool call requested by the model.
type Invocation struct {
	CallID    string
	Name      string
	Arguments string
}

// Outcome is the result of one invocation. Exactly one of Content or Err is
// meaningful; both serialize into a tool-result message so no outcome is ever
// dropped from the conversation.
type Outcome struct {
	CallID  string
	Name    string
	Content string
	Err     *Error
	Elapsed time.Duration
}

// Message converts the outcome into the tool-result turn appended to the
// conversation. Errors become their JSON payload so the model can react.
func (o Outcome) Message() ai.Message {
	content := o.Content
	if o.Err != nil {
		content = o.Err.Payload()
	}
	return ai.Message{
		Role:       ai.RoleTool,
		Content:    content,
		ToolCallID: o.CallID,
		Name:       o.Name,
	}
}

// Invoke dispatches one tool call. It never returns a Go error: unknown
// names, timeouts, and tool failures all land in Outcome.Err so the caller
// can feed them back to the model. Transient network failures get one retry
// with backoff before being reported.
func (r *Registry) Invoke(ctx context.Context, invocation Invocation) Outcome {
	outcome := Outcome{CallID: invocation.CallID, Name: invocation.Name}
	start := time.Now()

	target, known := r.tools[invocation.Name]
	if !known {
		outcome.Err = NewError(KindUnknownTool, invocation.Name, "no tool named %q is available", invocation.Name)
		outcome.Elapsed = time.Since(start)
		r.logger.Warn("unknown tool requested", "tool", invocation.Name)
		return outcome
	}

	content, err := r.callWithTimeout(ctx, target, invocation.Arguments)
	if err != nil {
		var classified *Error
		if errors.As(err, &classified) && classified.Retryable() && ctx.Err() == nil {
			r.logger.Debug("retrying tool after transient failure",
				"tool", invocation.Name, "error", classified.Message)
			r.sleep(retryBackoff)
			content, err = r.callWithTimeout(ctx, target, invocation.Arguments)
		}
	}

	outcome.Elapsed = time.Since(start)

	if err != nil {
		outcome.Err = classify(err, invocation.Name)
		r.logger.Warn("tool invocation failed",
			"tool", invocation.Name,
			"kind", string(outcome.Err.Kind),
			"elapsed", outcome.Elapsed,
			"error", outcome.Err.Message)
		return outcome
	}

	outcome.Content = content
	r.logger.Debug("tool invocation completed", "tool", invocation.Name, "elapsed", outcome.Elapsed)
	return outcome
}

func (r *Registry) callWithTimeout(ctx context.Context, target GenericTool, arguments string) (string, error) {
	invokeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return target.Call(invokeCtx, arguments)
}

// classify normalizes any error into a *Error, mapping context deadline and
// cancellation to the timeout kind.
func classify(err error, toolName string) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapError(KindTimeout, toolName, err)
	}
	return WrapError(KindNetwork, toolName, err)
}
