package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound covers both a missing record and an owner mismatch. The two are
// deliberately indistinguishable to callers so that probing for other users'
// photos reveals nothing.
var ErrNotFound = errors.New("photo not found")

// ErrTransitionNotAllowed means the configured moderation policy forbids the
// requested status transition. Distinct from ErrNotFound: moderators are
// trusted callers and need to see why the update was refused.
var ErrTransitionNotAllowed = errors.New("moderation transition not allowed")

// ValidationError rejects an upload before any expensive work. The Problems
// list carries field-level detail; Warnings are non-fatal and only present so
// the handler can forward them alongside the rejection.
type ValidationError struct {
	Problems []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return "invalid upload: " + strings.Join(e.Problems, "; ")
}

// CapacityError means the owner is at the active-photo limit.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("photo limit reached (max %d active photos)", e.Limit)
}

// ProcessingError wraps a decode/encode failure. The cause is logged but
// never surfaced verbatim to the client.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string { return fmt.Sprintf("image processing failed: %v", e.Err) }
func (e *ProcessingError) Unwrap() error { return e.Err }

// StorageError wraps an artifact read/write failure. Transient from the
// client's perspective; already-written tiers have been compensated by the
// time this is returned.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// ConsistencyError is a catalog invariant failure that survived one
// transactional retry.
type ConsistencyError struct {
	Err error
}

func (e *ConsistencyError) Error() string { return fmt.Sprintf("catalog conflict: %v", e.Err) }
func (e *ConsistencyError) Unwrap() error { return e.Err }
