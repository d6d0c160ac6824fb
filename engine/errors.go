package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine-level failure so callers can branch on it
// without string matching, matching spec §7's error taxonomy.
type Kind int

// Kind values corresponding to spec §7.
const (
	KindUnspecified Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindBadState
	KindNotReady
	KindTimeout
	KindIoError
	KindUnsupported
	KindTransientDecodeError
	KindFatalDecodeError
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindBadState:
		return "BadState"
	case KindNotReady:
		return "NotReady"
	case KindTimeout:
		return "Timeout"
	case KindIoError:
		return "IoError"
	case KindUnsupported:
		return "Unsupported"
	case KindTransientDecodeError:
		return "TransientDecodeError"
	case KindFatalDecodeError:
		return "FatalDecodeError"
	case KindInternal:
		return "Internal"
	default:
		return "Unspecified"
	}
}

// Error is the error type returned by every PlayoutEngine lifecycle
// operation that fails. It carries a Kind for dispatch and wraps an
// optional underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("engine: %s: %s", e.Op, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// newError constructs an *Error with the given kind, operation name, and
// message, optionally wrapping cause.
func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf walks err's Unwrap chain looking for an *Error and returns its
// Kind, or KindUnspecified if err is nil or carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnspecified
}
