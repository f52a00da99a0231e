// Package apperr holds the error taxonomy shared by the ingestion and query paths.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a caller-visible failure with a kind that maps onto an HTTP status.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + " - " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err; anything untyped is internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// CollaboratorError is a failure reported by an external service.
// Transient failures may be retried, everything else is fatal.
type CollaboratorError struct {
	Source    string
	Transient bool
	Err       error
}

func (e *CollaboratorError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s (%s): %v", e.Source, kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

func Transient(source string, err error) error {
	return &CollaboratorError{Source: source, Transient: true, Err: err}
}

func Fatal(source string, err error) error {
	return &CollaboratorError{Source: source, Err: err}
}

func IsTransient(err error) bool {
	var e *CollaboratorError
	return errors.As(err, &e) && e.Transient
}

// ErrRetriesExhausted is returned once a bounded retry loop gives up on a transient failure.
var ErrRetriesExhausted = errors.New("retries exhausted")
