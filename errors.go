package npunvme

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes engine failures into the seven kinds the batch
// scheduler and lifecycle distinguish between.
type ErrorKind string

const (
	// ErrConfiguration covers invalid parameters to Init or a batch call:
	// depth out of range, unaligned offset, zero size, size > max transfer.
	ErrConfiguration ErrorKind = "configuration"

	// ErrEnvironment covers hugepage init, device bind, probe, queue-pair
	// allocation, or DMA buffer allocation failure.
	ErrEnvironment ErrorKind = "environment"

	// ErrCopy covers an accelerator copy failure, either stage A or the
	// mirrored stage for reads.
	ErrCopy ErrorKind = "copy"

	// ErrSubmission covers an NVMe command that could not be submitted
	// (queue full, bad parameters).
	ErrSubmission ErrorKind = "submission"

	// ErrMedia covers an NVMe completion that returned non-success status.
	ErrMedia ErrorKind = "media"

	// ErrCapacity covers a requested range exceeding device capacity.
	ErrCapacity ErrorKind = "capacity"

	// ErrTimeout covers the watchdog firing before a batch completed.
	ErrTimeout ErrorKind = "timeout"
)

// Error is the engine's structured error type. Init and Cleanup return an
// *Error; a batch call reports its per-chunk failures as a *BatchError
// holding one *Error per failed chunk. Callers inspect Kind via errors.As
// or IsKind.
type Error struct {
	Op    string    // operation that failed, e.g. "Init", "WriteBatch"
	Kind  ErrorKind // high-level category
	Slot  int       // slot index, -1 if not applicable
	Msg   string    // human-readable message
	Inner error     // wrapped error
}

func (e *Error) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("npunvme: %s: %s (slot=%d): %s", e.Op, e.Kind, e.Slot, e.Msg)
	}
	return fmt.Sprintf("npunvme: %s: %s: %s", e.Op, e.Kind, e.Msg)
}

// Unwrap returns the wrapped error for errors.Is/errors.As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is allows errors.Is(err, npunvme.ErrTimeout) style comparisons by kind.
// An *Error target also matches by Kind alone, not by identity.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if kindErr, ok := target.(ErrorKind); ok {
		return e.Kind == kindErr
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

func (k ErrorKind) Error() string { return string(k) }

// NewError builds an *Error not tied to any particular slot.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Slot: -1, Msg: msg}
}

// NewSlotError builds an *Error tied to a specific slot, used when a
// per-chunk failure is recorded during a batch.
func NewSlotError(op string, slot int, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Slot: slot, Msg: msg}
}

// WrapError wraps an existing error with engine context, preserving the
// kind if inner is already an *Error.
func WrapError(op string, kind ErrorKind, inner error) *Error {
	if inner == nil {
		return nil
	}
	if existing, ok := inner.(*Error); ok {
		return &Error{Op: op, Kind: existing.Kind, Slot: existing.Slot, Msg: existing.Msg, Inner: existing}
	}
	return &Error{Op: op, Kind: kind, Slot: -1, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is, or wraps, an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// BatchError aggregates the per-chunk failures of a batch call. A batch
// that completes with at least one errored chunk returns a *BatchError
// alongside the full per-chunk result slice; callers that only care
// whether the batch as a whole succeeded can check for a nil return.
type BatchError struct {
	Op     string
	Errors []*Error
}

func (b *BatchError) Error() string {
	return fmt.Sprintf("npunvme: %s: %d chunk(s) failed", b.Op, len(b.Errors))
}

// NewBatchError returns nil if errs is empty, otherwise a *BatchError
// wrapping every non-nil entry in errs.
func NewBatchError(op string, errs []*Error) *BatchError {
	if len(errs) == 0 {
		return nil
	}
	return &BatchError{Op: op, Errors: errs}
}
