package session

import (
	"errors"
	"fmt"
)

// Sentinel errors the session surfaces (§6, §7). Each is returned inside
// the matching typed error below, whose Unwrap method lets callers test
// for it with errors.Is, in the spirit of how beads's sqlite layer
// exposes ErrNotFound/ErrConflict/ErrCycle.
var (
	ErrIdentityConflict = errors.New("identity conflict")
	ErrInvalidAction    = errors.New("invalid submit action")
	ErrCycleDetected    = errors.New("dependency cycle detected")
)

// IdentityConflictError is returned by SetSubmitAction when a
// different instance already occupies the same key in the identity
// cache and the cached instance is not pending Delete.
type IdentityConflictError struct {
	Key any
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("%v: key %v already tracks a different instance", ErrIdentityConflict, e.Key)
}

func (e *IdentityConflictError) Unwrap() error { return ErrIdentityConflict }

// InvalidActionError is returned by SetSubmitAction for an
// out-of-range SubmitAction value.
type InvalidActionError struct {
	Action SubmitAction
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInvalidAction, e.Action)
}

func (e *InvalidActionError) Unwrap() error { return ErrInvalidAction }

// CycleDetectedError is returned by SubmitChanges when the pending
// items' dependency graph contains a cycle. Items holds the tracked
// items on the cycle as a closed path (the first item appears again at
// the end), for diagnostics.
type CycleDetectedError struct {
	Items []*TrackedItem
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("%v: %d item(s) on the cycle", ErrCycleDetected, len(e.Items))
}

func (e *CycleDetectedError) Unwrap() error { return ErrCycleDetected }
