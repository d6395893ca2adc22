// Package errkind classifies flashing failures into a small, closed set of
// kinds so callers can react without matching on error strings.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind int

const (
	// Unknown is returned by Of for errors that carry no kind.
	Unknown Kind = iota

	// Timeout means no data arrived within an operation's bound.
	Timeout

	// Protocol means malformed or unexpected framing from the device.
	Protocol

	// Rejected means the device answered NAK or an error status.
	Rejected

	// Validation means the manifest or archive is inconsistent.
	// It is always detected before any device I/O.
	Validation

	// IO means the local transport failed (device gone, short write).
	IO

	// NotFound means a file referenced by name is missing.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Protocol:
		return "protocol"
	case Rejected:
		return "rejected"
	case Validation:
		return "validation"
	case IO:
		return "io"
	case NotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Kinded is implemented by errors that know their own kind.
type Kinded interface {
	Kind() Kind
}

// Error is a generic kinded error for failures without a dedicated type.
type Error struct {
	K   Kind
	Op  string
	Err error
}

// New returns an *Error with a formatted message.
func New(k Kind, op string, format string, args ...interface{}) *Error {
	return &Error{K: k, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind k to err. It returns nil if err is nil.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{K: k, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Kind implements Kinded.
func (e *Error) Kind() Kind { return e.K }

// Of returns the outermost kind found in err's chain.
func Of(err error) Kind {
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return Unknown
}

// Is reports whether err has kind k.
func Is(err error, k Kind) bool {
	return err != nil && Of(err) == k
}
