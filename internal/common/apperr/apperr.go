// Package apperr defines the orchestrator's error taxonomy: a single error
// type carrying a stable code, a human-readable message, and an optional
// wrapped cause, so kernel handlers can map failures onto wire error
// payloads without re-deriving their meaning from error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies the class of failure. Callers switch on Code, never on
// the formatted message.
type Code string

const (
	CodeAgentNotFound   Code = "AGENT_NOT_FOUND"
	CodeServiceNotFound Code = "SERVICE_NOT_FOUND"
	CodeClientNotFound  Code = "CLIENT_NOT_FOUND"
	CodeTaskNotFound    Code = "TASK_NOT_FOUND"
	CodeServerNotFound  Code = "SERVER_NOT_FOUND"
	CodeDuplicateID     Code = "DUPLICATE_ID"
	CodeUnsupportedType Code = "UNSUPPORTED_TYPE"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeTimeout         Code = "TIMEOUT"
	CodeRoutingFailure  Code = "ROUTING_FAILURE"
	CodeToolError       Code = "TOOL_ERROR"
	CodeNotRegistered   Code = "NOT_REGISTERED"
	CodeInternal        Code = "INTERNAL"
)

// AppError is the orchestrator's canonical error type.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newErr(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// AgentNotFound reports that no agent is registered under the given identifier.
func AgentNotFound(id string) *AppError {
	return newErr(CodeAgentNotFound, fmt.Sprintf("agent %q not found", id), nil)
}

// ServiceNotFound reports that no service is registered under the given identifier.
func ServiceNotFound(id string) *AppError {
	return newErr(CodeServiceNotFound, fmt.Sprintf("service %q not found", id), nil)
}

// ClientNotFound reports that no client connection is registered under the given identifier.
func ClientNotFound(id string) *AppError {
	return newErr(CodeClientNotFound, fmt.Sprintf("client %q not found", id), nil)
}

// TaskNotFound reports that no task exists with the given identifier.
func TaskNotFound(id string) *AppError {
	return newErr(CodeTaskNotFound, fmt.Sprintf("task %q not found", id), nil)
}

// ServerNotFound reports that no tool server is registered under the given name.
func ServerNotFound(name string) *AppError {
	return newErr(CodeServerNotFound, fmt.Sprintf("tool server %q not found", name), nil)
}

// DuplicateID reports that an identifier or name is already in use.
func DuplicateID(kind, id string) *AppError {
	return newErr(CodeDuplicateID, fmt.Sprintf("%s %q already registered", kind, id), nil)
}

// UnsupportedType reports an unrecognized wire message type.
func UnsupportedType(kind, typ string) *AppError {
	return newErr(CodeUnsupportedType, fmt.Sprintf("unsupported %s message type %q", kind, typ), nil)
}

// InvalidState reports an illegal state transition attempt.
func InvalidState(message string) *AppError {
	return newErr(CodeInvalidState, message, nil)
}

// Timeout reports that a pending response exceeded its deadline.
func Timeout(message string) *AppError {
	return newErr(CodeTimeout, message, nil)
}

// RoutingFailure reports that a message could not be delivered to its target.
func RoutingFailure(message string, err error) *AppError {
	return newErr(CodeRoutingFailure, message, err)
}

// ToolError reports a failure returned by a tool server invocation.
func ToolError(message string, err error) *AppError {
	return newErr(CodeToolError, message, err)
}

// NotRegistered reports an operation attempted before the connection completed
// its identity handshake.
func NotRegistered(message string) *AppError {
	return newErr(CodeNotRegistered, message, nil)
}

// Internal wraps an unexpected internal error.
func Internal(message string, err error) *AppError {
	return newErr(CodeInternal, message, err)
}

// Wrap annotates err with message, preserving its Code if it is already an
// *AppError, or tagging it CodeInternal otherwise.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return newErr(ae.Code, message+": "+ae.Message, ae.Err)
	}
	return newErr(CodeInternal, message, err)
}

// CodeOf extracts the Code from err, or CodeInternal if err is not an *AppError.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
