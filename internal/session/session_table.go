package session

import (
	"context"
	"fmt"
)

// SessionTable[T] is the typed façade §6/§9 calls for: a generic
// wrapper so callers get *SessionTable[T] without type assertions,
// backed by the same non-generic *table every other entry point
// (queries, the intercepting provider) shares.
type SessionTable[T any] struct {
	impl *table
}

// GetByID delegates to the underlying CRUD table (no identity-map
// lookup: identity mapping applies only to tracked instances, §4.E).
func (s *SessionTable[T]) GetByID(ctx context.Context, key any) (T, bool, error) {
	var zero T
	v, ok, err := s.impl.GetByID(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false, fmt.Errorf("session: table %s returned %T, want %T", fmtEntity(s.impl.entity), v, zero)
	}
	return typed, true, nil
}

// SetSubmitAction assigns instance's pending action for the next
// commit.
func (s *SessionTable[T]) SetSubmitAction(instance T, action SubmitAction) error {
	return s.impl.SetSubmitAction(instance, action)
}

// GetSubmitAction returns the tracked action for instance, resolving
// PossibleUpdate against change detection.
func (s *SessionTable[T]) GetSubmitAction(instance T) SubmitAction {
	return s.impl.GetSubmitAction(instance)
}

// TrackedCount returns the number of instances this table is
// currently tracking (explicit actions plus materialized entities).
// Mainly useful for tests and diagnostics.
func (s *SessionTable[T]) TrackedCount() int {
	return len(s.impl.trackedItems())
}
