package exchange

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure so the runner can choose between
// skipping one pair, backing off the whole tick, or terminating.
type ErrorKind string

const (
	// KindTransient covers connectivity, TLS, timeouts, 5xx responses and
	// malformed payloads. The current tick is abandoned and retried later.
	KindTransient ErrorKind = "transient"
	// KindRejected covers requests the venue answered with success=false
	// (unknown market, insufficient funds, rejected order). Pair-local.
	KindRejected ErrorKind = "rejected"
	// KindValidation covers requests that never left the process because the
	// arguments were invalid.
	KindValidation ErrorKind = "validation"
)

// Error is the classified failure type returned by the gateway.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a transient
// transport failure.
func IsTransient(err error) bool { return hasKind(err, KindTransient) }

// IsRejected reports whether the venue answered the request with a
// non-success result.
func IsRejected(err error) bool { return hasKind(err, KindRejected) }

func hasKind(err error, kind ErrorKind) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}
