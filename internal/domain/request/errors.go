package request

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures. Callers branch on Kind, never on
// message text.
type Kind string

const (
	KindUnrecognizedType         Kind = "UnrecognizedType"
	KindMalformedPayload         Kind = "MalformedPayload"
	KindUnauthenticatedSubmitter Kind = "UnauthenticatedSubmitter"
	KindForbidden                Kind = "Forbidden"
	KindNotFound                 Kind = "NotFound"
	KindInvalidStateTransition   Kind = "InvalidStateTransition"
	KindDuplicateID              Kind = "DuplicateId"
	KindStoreUnavailable         Kind = "StoreUnavailable"
)

// FieldError names one payload field that failed validation.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	// Current is the stored record when Kind is InvalidStateTransition.
	Current *Request
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnrecognizedType         = &Error{Kind: KindUnrecognizedType}
	ErrMalformedPayload         = &Error{Kind: KindMalformedPayload}
	ErrUnauthenticatedSubmitter = &Error{Kind: KindUnauthenticatedSubmitter}
	ErrForbidden                = &Error{Kind: KindForbidden}
	ErrNotFound                 = &Error{Kind: KindNotFound}
	ErrInvalidStateTransition   = &Error{Kind: KindInvalidStateTransition}
	ErrDuplicateID              = &Error{Kind: KindDuplicateID}
	ErrStoreUnavailable         = &Error{Kind: KindStoreUnavailable}
)

// KindOf returns the kind of a workflow error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func malformed(fields ...FieldError) *Error {
	return &Error{Kind: KindMalformedPayload, Message: "payload failed validation", Fields: fields}
}

func storeUnavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: op + " failed", Err: err}
}
