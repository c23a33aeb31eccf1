package failure

import (
	"errors"
	"net/http"
)

// Class groups engine errors by how a caller should react to them.
type Class int

const (
	// Internal covers unexpected errors (storage, programming faults).
	Internal Class = iota
	// Precondition is bad input shape; safe to retry once the input is fixed.
	Precondition
	// Authorization means the caller must change identity or target.
	Authorization
	// Temporal marks a record that expired or was revoked; terminal for that record.
	Temporal
	// Capacity is retryable later: more approvals, more balance, a new day bucket.
	Capacity
	// External means the ledger collaborator rejected the movement of funds.
	External
)

func (c Class) String() string {
	switch c {
	case Precondition:
		return "precondition"
	case Authorization:
		return "authorization"
	case Temporal:
		return "temporal"
	case Capacity:
		return "capacity"
	case External:
		return "external"
	default:
		return "internal"
	}
}

// Error is a classified error. Sentinel values are compared with errors.Is.
type Error struct {
	Class   Class
	Message string
	Err     error
}

// New builds a sentinel error of the given class.
func New(class Class, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Wrap classifies err, keeping it reachable through errors.Unwrap.
func Wrap(class Class, err error, message string) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf returns the class of the outermost classified error in the chain.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return Internal
}

// HTTPStatus maps an error to the status code a host should answer with.
func HTTPStatus(err error) int {
	switch ClassOf(err) {
	case Precondition:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case Temporal:
		return http.StatusGone
	case Capacity:
		return http.StatusConflict
	case External:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
