package tool

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies a tool failure. Every kind is recoverable from the
// conversation's point of view: the serialized error is fed back to the model
// as a tool result and the turn loop continues.
type ErrorKind string

const (
	// KindInvalidArgument means the argument payload was malformed or failed
	// validation.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindForbidden means a politeness rule denied the operation.
	KindForbidden ErrorKind = "forbidden"
	// KindNetwork means the upstream request failed (connection error or
	// non-2xx status).
	KindNetwork ErrorKind = "network"
	// KindTimeout means the invocation exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindParseFailure means the upstream response could not be interpreted.
	KindParseFailure ErrorKind = "parse_failure"
	// KindUnknownTool means the requested tool name is not in the registry.
	KindUnknownTool ErrorKind = "unknown_tool"
)

// Error is a classified tool failure. It travels two ways: as a Go error
// inside the tool layer, and serialized to JSON as the tool-result payload
// shown to the model.
type Error struct {
	Kind    ErrorKind `json:"error"`
	Tool    string    `json:"tool,omitempty"`
	Message string    `json:"message"`

	cause error
}

// NewError creates an Error with a formatted message.
func NewError(kind ErrorKind, toolName string, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Tool:    toolName,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError classifies an underlying error. The cause stays reachable through
// errors.Unwrap while the message is what the model sees.
func WrapError(kind ErrorKind, toolName string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Tool:    toolName,
		Message: cause.Error(),
		cause:   cause,
	}
}

func (e *Error) Error() string {
	if e.Tool != "" {
		return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failure is worth one more attempt. Only
// transient network failures qualify; a timeout already consumed the
// invocation budget and the rest are deterministic.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetwork
}

// Payload serializes the error into the JSON tool-result body fed back to the
// model.
func (e *Error) Payload() string {
	encoded, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":%q,"message":"unserializable tool error"}`, e.Kind)
	}
	return string(encoded)
}

// KindOf extracts the ErrorKind from an error chain, or "" when the chain
// carries no classified tool error.
func KindOf(err error) ErrorKind {
	var toolErr *Error
	if errors.As(err, &toolErr) {
		return toolErr.Kind
	}
	return ""
}
