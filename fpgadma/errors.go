package fpgadma

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession is generated when an operation is attempted on a
	// session that is closed, failed to open, or was left unusable by a
	// failed notification pass
	ErrInvalidSession = errors.New("invalid device session")

	// ErrHardwareAccess is generated when the driver rejects a register
	// access or a query
	ErrHardwareAccess = errors.New("hardware access failure")

	// ErrInvalidChannel is generated when a channel or descriptor index is
	// beyond the limits of the board
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrNotificationAllocation is generated when an eventfd cannot be created
	// for a channel/descriptor slot
	ErrNotificationAllocation = errors.New("notification allocation failure")

	// ErrRegistration is generated when the driver rejects the eventfd table
	ErrRegistration = errors.New("notification registration failure")
)

// Error is the concrete error returned by Session methods.
// errors.Is(err, ErrHardwareAccess) and friends match on Kind.
type Error struct {
	// Kind is one of the Err* sentinels of this package
	Kind error

	// Op describes what was being done, e.g. "write 0x400"
	Op string

	// Err is the underlying cause, if any
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fpgadma: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("fpgadma: %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e
func (e *Error) Is(target error) bool { return target == e.Kind }

func fail(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
