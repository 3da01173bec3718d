package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for the mission lifecycle. Forbidden, InvalidState and
// Expired are permanent: retrying the same command cannot succeed.
// ContentStoreFailure and PaymentFailure are transient: the mission state
// did not advance and the caller may retry the whole command.
var (
	ErrNotFound        = errors.New("mission not found")
	ErrForbidden       = errors.New("actor lacks standing for this command")
	ErrExpired         = errors.New("mission has expired")
	ErrAlreadyAssigned = errors.New("mission was assigned to another runner")
	ErrMissingProof    = errors.New("mission has no submitted proof")
)

// InvalidStateError reports a command that is not valid for the mission's
// current status.
type InvalidStateError struct {
	Command string
	Status  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a %s mission", e.Command, e.Status)
}

// ValidationError reports malformed input detected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ContentStoreFailure wraps a failed content store call. The mission state
// was not advanced; safe to retry.
type ContentStoreFailure struct {
	Op  string
	Err error
}

func (e *ContentStoreFailure) Error() string {
	return fmt.Sprintf("content store %s failed: %v", e.Op, e.Err)
}

func (e *ContentStoreFailure) Unwrap() error { return e.Err }

// PaymentFailure wraps a failed settlement attempt. The mission remains
// IN_PROGRESS and no settlement record exists; the curator may re-approve.
// Detail carries the rail's raw error for display, kept separate from the
// ledger's own message.
type PaymentFailure struct {
	Method string
	Detail string
	Err    error
}

func (e *PaymentFailure) Error() string {
	return fmt.Sprintf("settlement via %s failed: %s", e.Method, e.Detail)
}

func (e *PaymentFailure) Unwrap() error { return e.Err }
