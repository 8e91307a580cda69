// Package tool provides the typed tool abstraction, the failure taxonomy, and
// the registry the orchestrator dispatches through. Concrete capabilities live
// in subpackages (webfetch, websearch, docread).
package tool

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kaptinlin/jsonrepair"

	"scout/internal/jsonschema"
	"scout/providers/ai"
)

// Tool binds a name and description to a strongly-typed handler. The JSON
// schema for the input type I is derived by reflection and advertised to the
// model. Construct with [NewTool].
type Tool[I, O any] struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Function    func(ctx context.Context, input I) (O, error)
}

// GenericTool abstracts over the type parameters of [Tool] so tools can be
// stored and dispatched uniformly.
type GenericTool interface {
	// Info returns the metadata advertised to the model.
	Info() ai.ToolDescription

	// Call invokes the tool with a JSON argument payload and returns the
	// JSON result payload. Failures are returned as a classified *Error.
	Call(ctx context.Context, argumentsJSON string) (string, error)
}

// NewTool constructs a Tool from a handler function. The parameter schema is
// derived from I's struct tags.
func NewTool[I, O any](name, description string, function func(ctx context.Context, input I) (O, error)) *Tool[I, O] {
	return &Tool[I, O]{
		Name:        name,
		Description: description,
		Parameters:  jsonschema.For[I](),
		Function:    function,
	}
}

// Info implements GenericTool.
func (t *Tool[I, O]) Info() ai.ToolDescription {
	return ai.ToolDescription{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// Call implements GenericTool. Malformed arguments are repaired when possible
// and classified as invalid_argument when not. Handler failures keep their
// classification if the handler returned a *Error; anything else is wrapped
// by deadline state.
func (t *Tool[I, O]) Call(ctx context.Context, argumentsJSON string) (string, error) {
	input, err := decodeArguments[I](t.Name, argumentsJSON)
	if err != nil {
		return "", err
	}

	output, err := t.Function(ctx, input)
	if err != nil {
		var classified *Error
		if errors.As(err, &classified) {
			return "", classified
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", WrapError(KindTimeout, t.Name, err)
		}
		return "", WrapError(KindNetwork, t.Name, err)
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		return "", WrapError(KindParseFailure, t.Name, err)
	}
	return string(encoded), nil
}

// decodeArguments parses model-supplied argument JSON into the input type.
// Models occasionally emit slightly broken JSON (single quotes, trailing
// commas, unquoted keys); one repair pass is attempted before giving up.
func decodeArguments[I any](toolName, argumentsJSON string) (I, error) {
	var input I

	if argumentsJSON == "" {
		argumentsJSON = "{}"
	}

	if err := json.Unmarshal([]byte(argumentsJSON), &input); err == nil {
		return input, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(argumentsJSON)
	if repairErr != nil {
		return input, NewError(KindInvalidArgument, toolName, "unparseable arguments: %v", repairErr)
	}
	if err := json.Unmarshal([]byte(repaired), &input); err != nil {
		return input, NewError(KindInvalidArgument, toolName, "arguments do not match schema: %v", err)
	}
	return input, nil
}
