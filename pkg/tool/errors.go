package tool

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed invocation. The string value is what
// callers see on the wire.
type ErrorKind string

const (
	KindUnknownTool          ErrorKind = "unknown_tool"
	KindHandlerMisconfigured ErrorKind = "handler_misconfigured"
	KindInvalidInput         ErrorKind = "invalid_tool_input"
	KindExecutionError       ErrorKind = "tool_execution_error"
	KindInvalidRequest       ErrorKind = "invalid_request_format"
)

// Error is a classified invocation failure. Message is safe to show to the
// caller; Err carries the internal cause for logs and audit records.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the internal cause, or the message when there is none.
func (e *Error) Detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// UnknownTool reports a tool name that is not active in the registry.
func UnknownTool(name string) *Error {
	return &Error{
		Kind:    KindUnknownTool,
		Message: fmt.Sprintf("Tool '%s' is not recognized by this server.", name),
	}
}

// InvalidInput reports caller input that does not satisfy a tool's rules.
func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// ExecutionError reports an unexpected failure while running a tool. The
// message is generic; cause is kept for operators.
func ExecutionError(name string, cause error) *Error {
	return &Error{
		Kind:    KindExecutionError,
		Message: fmt.Sprintf("An unexpected error occurred while running tool '%s'.", name),
		Err:     cause,
	}
}

// HandlerMisconfigured reports a tool whose handler cannot be built.
func HandlerMisconfigured(name string, cause error) *Error {
	return &Error{
		Kind:    KindHandlerMisconfigured,
		Message: fmt.Sprintf("Tool '%s' is not correctly configured on this server.", name),
		Err:     cause,
	}
}

// InvalidRequest reports a transport request that could not be decoded.
func InvalidRequest(message string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) ErrorKind {
	if te, ok := AsError(err); ok {
		return te.Kind
	}
	return ""
}
