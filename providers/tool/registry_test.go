package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"scout/providers/ai"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"description=Text to echo,required"`
}

type echoOutput struct {
	Echoed string `json:"echoed"`
}

func newEchoTool() GenericTool {
	return NewTool("echo", "Echoes its input back.",
		func(ctx context.Context, input echoInput) (echoOutput, error) {
			return echoOutput{Echoed: input.Text}, nil
		})
}

func newRegistry(t *testing.T, tools ...GenericTool) *Registry {
	t.Helper()
	registry := NewRegistry(tools)
	registry.sleep = func(time.Duration) {}
	return registry
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	registry := newRegistry(t, newEchoTool())

	outcome := registry.Invoke(context.Background(), Invocation{
		CallID:    "call_1",
		Name:      "echo",
		Arguments: `{"text":"hello"}`,
	})

	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}

	var output echoOutput
	if err := json.Unmarshal([]byte(outcome.Content), &output); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	if output.Echoed != "hello" {
		t.Errorf("unexpected output: %+v", output)
	}
}

func TestRegistry_UnknownToolIsOutcomeNotError(t *testing.T) {
	registry := newRegistry(t, newEchoTool())

	outcome := registry.Invoke(context.Background(), Invocation{
		CallID: "call_1",
		Name:   "foo",
	})

	if outcome.Err == nil || outcome.Err.Kind != KindUnknownTool {
		t.Fatalf("expected unknown_tool outcome, got %+v", outcome)
	}

	message := outcome.Message()
	if message.Role != ai.RoleTool {
		t.Errorf("expected tool role, got %q", message.Role)
	}
	if !strings.Contains(message.Content, string(KindUnknownTool)) {
		t.Errorf("error kind not in payload: %q", message.Content)
	}
}

func TestRegistry_RepairsMalformedArguments(t *testing.T) {
	registry := newRegistry(t, newEchoTool())

	// Single quotes and an unquoted key: repairable.
	outcome := registry.Invoke(context.Background(), Invocation{
		CallID:    "call_1",
		Name:      "echo",
		Arguments: `{text: 'fixed'}`,
	})

	if outcome.Err != nil {
		t.Fatalf("expected repair to succeed, got %v", outcome.Err)
	}
	if !strings.Contains(outcome.Content, "fixed") {
		t.Errorf("unexpected content: %q", outcome.Content)
	}
}

func TestRegistry_InvalidArgumentClassification(t *testing.T) {
	registry := newRegistry(t, newEchoTool())

	outcome := registry.Invoke(context.Background(), Invocation{
		CallID:    "call_1",
		Name:      "echo",
		Arguments: `{"text": {"not": "a string"}}`,
	})

	if outcome.Err == nil || outcome.Err.Kind != KindInvalidArgument {
		t.Fatalf("expected invalid_argument, got %+v", outcome.Err)
	}
}

func TestRegistry_RetriesNetworkFailureOnce(t *testing.T) {
	attempts := 0
	flaky := NewTool("flaky", "Fails once then succeeds.",
		func(ctx context.Context, input struct{}) (string, error) {
			attempts++
			if attempts == 1 {
				return "", NewError(KindNetwork, "flaky", "connection reset")
			}
			return "recovered", nil
		})

	registry := newRegistry(t, flaky)

	outcome := registry.Invoke(context.Background(), Invocation{CallID: "c", Name: "flaky"})
	if outcome.Err != nil {
		t.Fatalf("expected retry to recover, got %v", outcome.Err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestRegistry_NoRetryForDeterministicFailures(t *testing.T) {
	attempts := 0
	forbidden := NewTool("guarded", "Always forbidden.",
		func(ctx context.Context, input struct{}) (string, error) {
			attempts++
			return "", NewError(KindForbidden, "guarded", "path disallowed")
		})

	registry := newRegistry(t, forbidden)

	outcome := registry.Invoke(context.Background(), Invocation{CallID: "c", Name: "guarded"})
	if outcome.Err == nil || outcome.Err.Kind != KindForbidden {
		t.Fatalf("expected forbidden, got %+v", outcome.Err)
	}
	if attempts != 1 {
		t.Errorf("deterministic failure must not be retried, got %d attempts", attempts)
	}
}

func TestRegistry_TimeoutClassification(t *testing.T) {
	slow := NewTool("slow", "Sleeps past the deadline.",
		func(ctx context.Context, input struct{}) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	registry := NewRegistry([]GenericTool{slow}, WithInvokeTimeout(20*time.Millisecond))
	registry.sleep = func(time.Duration) {}

	outcome := registry.Invoke(context.Background(), Invocation{CallID: "c", Name: "slow"})
	if outcome.Err == nil || outcome.Err.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %+v", outcome.Err)
	}
}

func TestRegistry_Descriptions(t *testing.T) {
	second := NewTool("second", "Second tool.",
		func(ctx context.Context, input struct{}) (string, error) { return "", nil })

	registry := newRegistry(t, newEchoTool(), second)

	descriptions := registry.Descriptions()
	if len(descriptions) != 2 {
		t.Fatalf("expected 2 descriptions, got %d", len(descriptions))
	}
	if descriptions[0].Name != "echo" || descriptions[1].Name != "second" {
		t.Errorf("registration order not preserved: %+v", descriptions)
	}
	if descriptions[0].Parameters == nil || descriptions[0].Parameters.Type != "object" {
		t.Errorf("parameter schema missing: %+v", descriptions[0].Parameters)
	}
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	original := NewError(KindForbidden, "web_fetch", "path /private is disallowed")

	var decoded Error
	if err := json.Unmarshal([]byte(original.Payload()), &decoded); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if decoded.Kind != KindForbidden || decoded.Message != original.Message {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestKindOf(t *testing.T) {
	wrapped := WrapError(KindNetwork, "web_fetch", errors.New("dial tcp: refused"))

	if kind := KindOf(wrapped); kind != KindNetwork {
		t.Errorf("expected network kind, got %q", kind)
	}
	if kind := KindOf(errors.New("plain")); kind != "" {
		t.Errorf("expected empty kind for plain error, got %q", kind)
	}
}
