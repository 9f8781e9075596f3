// Package mapping is the read-only façade the session consults for entity
// metadata: key extraction, cloning, modification detection, and the
// dependency graph between entity instances. The session never reasons
// about SQL, reflection, or struct layout directly — it only calls this
// interface.
package mapping

import "reflect"

// EntityDescriptor identifies a logical table together with the mapping
// metadata that describes it. It is opaque to the session: two
// descriptors are equal iff they name the same table.
type EntityDescriptor struct {
	Type    reflect.Type
	TableID string
}

// Ref pairs an entity instance with the descriptor of the table it
// belongs to, as returned by DependingEntities/DependentEntities.
type Ref struct {
	Entity   EntityDescriptor
	Instance any
}

// Mapping is the capability set the session consumes from external
// mapping metadata (§4.A). Implementations must be deterministic:
// PrimaryKey, Clone and IsModified are called repeatedly against the
// same instance and must agree with themselves.
type Mapping interface {
	// EntityOf resolves the logical table for a Go type and table id.
	EntityOf(t reflect.Type, tableID string) (EntityDescriptor, error)

	// PrimaryKey extracts the entity key from an instance. The result
	// must be comparable (usable as a Go map key).
	PrimaryKey(entity EntityDescriptor, instance any) (any, error)

	// Clone produces a snapshot of instance deep enough that later
	// mutation of instance does not affect the snapshot, and that
	// IsModified can compare the two meaningfully.
	Clone(entity EntityDescriptor, instance any) (any, error)

	// IsModified reports whether current differs from original in any
	// field that should trigger an update.
	IsModified(entity EntityDescriptor, current, original any) (bool, error)

	// DependingEntities enumerates the entities instance depends on —
	// its foreign-key targets. These must commit before instance on
	// insert.
	DependingEntities(entity EntityDescriptor, instance any) ([]Ref, error)

	// DependentEntities enumerates the entities that depend on
	// instance — entities whose foreign keys point at it. These must
	// commit before instance is deleted.
	DependentEntities(entity EntityDescriptor, instance any) ([]Ref, error)

	// CanEvaluateLocally reports whether expr can be evaluated in the
	// application process rather than translated to the store. The
	// session's provider boundary treats expr as opaque; this module
	// does not build expression trees, so expr is typically a raw
	// query fragment supplied by the caller.
	CanEvaluateLocally(expr any) bool
}
