// Package domain holds the error kinds shared by every engine component.
package domain

import "fmt"

// ErrorKind classifies an engine error by how it is surfaced to the user.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindValidation          ErrorKind = "validation"
	KindPolicyDenied        ErrorKind = "policy_denied"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindPersistence         ErrorKind = "persistence"
)

// Error is a domain error carrying its kind and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrPolicyDenied        = &Error{Kind: KindPolicyDenied}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrPersistence         = &Error{Kind: KindPersistence}
)

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

func NotFound(message string, err error) *Error {
	return NewError(KindNotFound, message, err)
}

func Validation(message string, err error) *Error {
	return NewError(KindValidation, message, err)
}

func PolicyDenied(message string, err error) *Error {
	return NewError(KindPolicyDenied, message, err)
}

func UpstreamUnavailable(message string, err error) *Error {
	return NewError(KindUpstreamUnavailable, message, err)
}

func Persistence(message string, err error) *Error {
	return NewError(KindPersistence, message, err)
}

// KindOf returns the kind of the first domain error in err's chain, or "".
func KindOf(err error) ErrorKind {
	for err != nil {
		if de, ok := err.(*Error); ok {
			return de.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
