// Package brokererr defines the broker's error taxonomy, a typed error
// carrying a classification code so the dispatch service can shape a
// user-visible failure without re-inspecting error strings.
package brokererr

import "fmt"

// Code classifies a failure for propagation and shaping purposes.
type Code string

const (
	InvalidRequest    Code = "INVALID_REQUEST"
	UnknownAgent      Code = "UNKNOWN_AGENT"
	NoAgents          Code = "NO_AGENTS"
	UnknownTool       Code = "UNKNOWN_TOOL"
	MalformedToolName Code = "MALFORMED_TOOL_NAME"
	AccessDenied      Code = "ACCESS_DENIED"
	UpstreamError     Code = "UPSTREAM_ERROR"
	TransportClosed   Code = "TRANSPORT_CLOSED"
	Timeout           Code = "TIMEOUT"
	PoolSaturated     Code = "POOL_SATURATED"
	Internal          Code = "INTERNAL"
)

// Error is a classified broker failure. Status is set only for
// UpstreamError, carrying the backend's HTTP status code.
type Error struct {
	Code    Code
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an existing error under code.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Upstream builds an UpstreamError carrying the backend's HTTP status.
func Upstream(status int, reason string) *Error {
	return &Error{Code: UpstreamError, Message: reason, Status: status}
}

// CodeOf extracts the classification code from err, defaulting to Internal
// for an error that was never classified.
func CodeOf(err error) Code {
	var be *Error
	if ok := asError(err, &be); ok {
		return be.Code
	}
	return Internal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if be, ok := err.(*Error); ok {
			*target = be
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
