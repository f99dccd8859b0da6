// Package fault classifies planner errors into the small set of kinds the
// drivers act on: configuration, data, resource, cancellation, conflict and
// internal.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable error class carried alongside the message.
type Kind string

const (
	Config    Kind = "config"
	Data      Kind = "data"
	Resource  Kind = "resource"
	Cancelled Kind = "cancelled"
	Conflict  Kind = "conflict"
	Internal  Kind = "internal"
)

// Error pairs a Kind with a wrapped cause. The message is a single line so
// it can be stored verbatim in the project record's error_message field.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error of the given kind wrapping a formatted message.
func New(kind Kind, format string, v ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, v...)}
}

// Wrap attaches a kind to an existing error. A nil err returns nil. If err
// already carries a kind it is preserved.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the kind from err, defaulting to Internal for unclassified
// errors and the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// ExitCode maps an error to the CLI exit code contract: 0 success,
// 2 configuration error, 3 data error, 4 cancelled, 5 internal error.
// Resource errors exit as data errors would not; they are internal to the
// host, so they share code 5.
func ExitCode(err error) int {
	switch KindOf(err) {
	case "":
		return 0
	case Config:
		return 2
	case Data:
		return 3
	case Cancelled:
		return 4
	default:
		return 5
	}
}
