package stream

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// ConnectionFailure means the transport never opened.
	ConnectionFailure ErrorKind = "connection_failure"
	// ConnectionLost means the transport opened but dropped before any content.
	ConnectionLost   ErrorKind = "connection_lost"
	Timeout          ErrorKind = "timeout"
	MalformedPayload ErrorKind = "malformed_payload"
	EmptyResponse    ErrorKind = "empty_response"
	// ServerError means the server answered, but with an error status.
	ServerError ErrorKind = "server_error"
	Canceled    ErrorKind = "canceled"
)

// Message returns the fixed text shown to the user in place of the answer.
func (k ErrorKind) Message() string {
	switch k {
	case ConnectionFailure:
		return "Sorry, I cannot connect to the server. Please check your connection and try again."
	case ConnectionLost:
		return "Sorry, I encountered a connection error while processing your request. Please try again."
	case Timeout:
		return "Request timed out. The AI took too long to respond. Please try again."
	case MalformedPayload:
		return "Sorry, I received an invalid response format. Please try again."
	case EmptyResponse:
		return "Sorry, no response was received. Please try again."
	case ServerError:
		return "Sorry, the server encountered an error. Please try again."
	case Canceled:
		return "Request cancelled."
	default:
		return "Sorry, I encountered an error while processing your request. Please try again."
	}
}

// Error is a failed request, classified by kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain. Errors that
// weren't classified are reported as ConnectionLost.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ConnectionLost
}
