package session

import "fmt"

// SubmitAction is the tagged variant describing what, if anything, a
// tracked instance should do on the next commit (§3).
type SubmitAction int

const (
	// SubmitNone means the instance is not tracked for change.
	SubmitNone SubmitAction = iota
	// SubmitInsert means the instance must be inserted on next commit.
	SubmitInsert
	// SubmitUpdate means the instance must be updated unconditionally.
	SubmitUpdate
	// SubmitInsertOrUpdate means the instance is upserted.
	SubmitInsertOrUpdate
	// SubmitPossibleUpdate means commit decides whether to update based
	// on change detection.
	SubmitPossibleUpdate
	// SubmitDelete means the instance must be deleted.
	SubmitDelete
)

func (a SubmitAction) String() string {
	switch a {
	case SubmitNone:
		return "None"
	case SubmitInsert:
		return "Insert"
	case SubmitUpdate:
		return "Update"
	case SubmitInsertOrUpdate:
		return "InsertOrUpdate"
	case SubmitPossibleUpdate:
		return "PossibleUpdate"
	case SubmitDelete:
		return "Delete"
	default:
		return fmt.Sprintf("SubmitAction(%d)", int(a))
	}
}

func validSubmitAction(a SubmitAction) bool {
	switch a {
	case SubmitNone, SubmitInsert, SubmitUpdate, SubmitInsertOrUpdate, SubmitPossibleUpdate, SubmitDelete:
		return true
	default:
		return false
	}
}

// TrackedItem is the session's immutable record of a pending change to
// a specific instance (§3). Every state transition produces a new
// *TrackedItem rather than mutating one in place; table holds the
// non-owning back-reference used by commit orchestration.
type TrackedItem struct {
	table      *table
	instance   any
	original   any // snapshot; when subscribed, nil until the first change notification
	state      SubmitAction
	subscribed bool
}

// Instance returns the live entity instance this item tracks.
func (t *TrackedItem) Instance() any { return t.instance }

// State returns the tracked SubmitAction as last assigned — unlike
// GetSubmitAction, this does not resolve PossibleUpdate against
// IsModified.
func (t *TrackedItem) State() SubmitAction { return t.state }

func (t *TrackedItem) String() string {
	return fmt.Sprintf("TrackedItem{%T, state=%s}", t.instance, t.state)
}

// Notifier is the change-notification capability a tracked instance
// may implement (§6). Subscribe registers a single "about to change"
// callback; field-level granularity is not required. A table calls
// Subscribe at most once per instance for the table's lifetime
// (invariant 3).
type Notifier interface {
	Subscribe(onBeforeChange func())
}
