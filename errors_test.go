package npunvme

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := NewError("Init", ErrConfiguration, "depth out of range")

	if err.Op != "Init" {
		t.Errorf("Expected Op=Init, got %s", err.Op)
	}
	if err.Kind != ErrConfiguration {
		t.Errorf("Expected Kind=ErrConfiguration, got %s", err.Kind)
	}
	if err.Slot != -1 {
		t.Errorf("Expected Slot=-1, got %d", err.Slot)
	}
}

func TestNewSlotError(t *testing.T) {
	err := NewSlotError("WriteBatch", 3, ErrMedia, "non-success status")

	if err.Slot != 3 {
		t.Errorf("Expected Slot=3, got %d", err.Slot)
	}
	want := "npunvme: WriteBatch: media (slot=3): non-success status"
	if err.Error() != want {
		t.Errorf("Expected error message %q, got %q", want, err.Error())
	}
}

func TestWrapErrorPreservesKind(t *testing.T) {
	inner := NewError("PollCompletions", ErrMedia, "status=0x2")
	wrapped := WrapError("WriteBatch", ErrSubmission, inner)

	if wrapped.Kind != ErrMedia {
		t.Errorf("Expected wrapped kind to be preserved as ErrMedia, got %s", wrapped.Kind)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("expected errors.Is to unwrap to the inner error")
	}
}

func TestWrapErrorPlainError(t *testing.T) {
	inner := fmt.Errorf("queue full")
	wrapped := WrapError("SubmitWrite", ErrSubmission, inner)

	if wrapped.Kind != ErrSubmission {
		t.Errorf("Expected Kind=ErrSubmission, got %s", wrapped.Kind)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("expected errors.Is to unwrap to the inner plain error")
	}
}

func TestIsKind(t *testing.T) {
	err := NewError("Run", ErrTimeout, "watchdog fired")

	if !IsKind(err, ErrTimeout) {
		t.Error("IsKind should return true for matching kind")
	}
	if IsKind(err, ErrMedia) {
		t.Error("IsKind should return false for non-matching kind")
	}
	if IsKind(nil, ErrTimeout) {
		t.Error("IsKind should return false for nil error")
	}
}

func TestErrorIsByKind(t *testing.T) {
	err := NewError("Run", ErrCapacity, "lba out of range")
	if !errors.Is(err, ErrCapacity) {
		t.Error("expected errors.Is(err, ErrCapacity) to hold via ErrorKind comparison")
	}
}

func TestNewBatchErrorNilWhenEmpty(t *testing.T) {
	if NewBatchError("WriteBatch", nil) != nil {
		t.Error("expected NewBatchError to return nil for an empty slice")
	}
}

func TestBatchErrorAggregates(t *testing.T) {
	errs := []*Error{
		NewSlotError("WriteBatch", 0, ErrCapacity, "oob"),
		NewSlotError("WriteBatch", 2, ErrMedia, "bad status"),
	}
	batch := NewBatchError("WriteBatch", errs)
	if batch == nil {
		t.Fatal("expected non-nil BatchError")
	}
	if len(batch.Errors) != 2 {
		t.Errorf("expected 2 aggregated errors, got %d", len(batch.Errors))
	}
}
