// Package session is the entity session: a unit-of-work that sits
// between application code and a query provider, tracks identity and
// mutation state of materialized entities, and flushes pending changes
// to the store as a single dependency-ordered transaction.
package session

import (
	"context"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
	"github.com/entitykit/session/internal/topo"
)

var tracer = otel.Tracer("github.com/entitykit/session/internal/session")

// Session owns the map from entity type to session table and
// orchestrates dependency-aware commit under a single transaction
// (§4.G). A Session is not safe for concurrent use by multiple
// callers; callers own their own serialization (§5).
type Session struct {
	mapping      mapping.Mapping
	provider     provider.Provider
	intercepting *interceptingProvider
	tables       map[mapping.EntityDescriptor]*table
}

// New creates a session over m (mapping metadata) and p (the
// underlying query provider). The session lazily creates one
// *table per entity type on first GetTable.
func New(m mapping.Mapping, p provider.Provider) *Session {
	s := &Session{
		mapping:  m,
		provider: p,
		tables:   make(map[mapping.EntityDescriptor]*table),
	}
	s.intercepting = newInterceptingProvider(p, s.lookupTable)
	return s
}

// Provider returns the intercepting provider — the queryable root
// application code should issue queries against. Rows of an entity
// type whose session table already exists (see GetTable) pass through
// interning before the caller sees them; rows of any other entity type
// reach the caller as the projector built them.
func (s *Session) Provider() provider.Provider { return s.intercepting }

func (s *Session) lookupTable(entity mapping.EntityDescriptor) (tableImpl, bool) {
	t, ok := s.tables[entity]
	return t, ok
}

// GetTable returns the session table for entity type T under tableID,
// creating it lazily on first call (§3 Lifecycles).
func GetTable[T any](ctx context.Context, s *Session, tableID string) (*SessionTable[T], error) {
	var zero T
	typ := reflect.TypeOf(zero)
	entity, err := s.mapping.EntityOf(typ, tableID)
	if err != nil {
		return nil, err
	}
	t, ok := s.tables[entity]
	if !ok {
		crud, err := s.provider.GetTable(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("session: resolving provider table for %s: %w", fmtEntity(entity), err)
		}
		t = newTable(entity, s.mapping, crud)
		s.tables[entity] = t
	}
	return &SessionTable[T]{impl: t}, nil
}

// pendingItems collects every tracked item across every table whose
// state is not None (§4.G step 1).
func (s *Session) pendingItems() []*TrackedItem {
	var items []*TrackedItem
	for _, t := range s.tables {
		for _, item := range t.trackedItems() {
			if item.state != SubmitNone {
				items = append(items, item)
			}
		}
	}
	return items
}

type edge struct{ from, to *TrackedItem }

// commitPredecessors builds the per-item predecessor function used by
// the topological sort (§4.G step 2–3). Edges are built uniformly as
// "to depends on from"; Insert/InsertOrUpdate items look at edges
// targeting them (what they depend on) plus any same-key pending
// Delete, while Delete items look at edges sourced at them (their
// dependents, which must go first). This resolves the ambiguity
// between the spec's prose and its own invariant 5 / scenarios S1,
// S4, S6 in favor of the invariant — see DESIGN.md.
func (s *Session) commitPredecessors(items []*TrackedItem) (func(*TrackedItem) []*TrackedItem, error) {
	find := func(ref mapping.Ref) (*TrackedItem, bool) {
		t, ok := s.tables[ref.Entity]
		if !ok {
			return nil, false
		}
		return t.getTracked(ref.Instance)
	}

	edgeSet := make(map[edge]bool)
	for _, item := range items {
		deps, err := s.mapping.DependingEntities(item.table.entity, item.instance)
		if err != nil {
			return nil, err
		}
		for _, d := range deps {
			if depItem, ok := find(d); ok {
				edgeSet[edge{from: depItem, to: item}] = true
			}
		}
		dependents, err := s.mapping.DependentEntities(item.table.entity, item.instance)
		if err != nil {
			return nil, err
		}
		for _, d := range dependents {
			if depItem, ok := find(d); ok {
				edgeSet[edge{from: item, to: depItem}] = true
			}
		}
	}

	return func(item *TrackedItem) []*TrackedItem {
		var preds []*TrackedItem
		switch item.state {
		case SubmitInsert, SubmitInsertOrUpdate:
			for e := range edgeSet {
				if e.to == item {
					preds = append(preds, e.from)
				}
			}
			if key, err := item.table.mapping.PrimaryKey(item.table.entity, item.instance); err == nil {
				if del, ok := item.table.pendingDeleteForKey(key); ok {
					preds = append(preds, del)
				}
			}
		case SubmitDelete:
			for e := range edgeSet {
				if e.from == item {
					preds = append(preds, e.to)
				}
			}
		}
		return preds
	}, nil
}

// SubmitChanges runs the dependency-ordered commit (§4.G). It collects
// all pending items, sorts them topologically, issues CRUD calls
// inside a single transaction, and — only once that transaction
// commits successfully — transitions every submitted item to its
// post-commit state (§5, §7: no accept on failure).
func (s *Session) SubmitChanges(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session.SubmitChanges")
	defer span.End()

	items := s.pendingItems()
	span.SetAttributes(attribute.Int("session.pending_items", len(items)))
	if len(items) == 0 {
		return nil
	}

	preds, err := s.commitPredecessors(items)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var submitted []*TrackedItem
	err = s.provider.DoTransacted(ctx, func(ctx context.Context) error {
		order, err := topo.Sort(items, preds)
		if err != nil {
			if ce, ok := err.(*topo.CycleError[*TrackedItem]); ok {
				return &CycleDetectedError{Items: ce.Items}
			}
			return err
		}
		for _, item := range order {
			ok, err := item.table.submit(ctx, item)
			if err != nil {
				return fmt.Errorf("session: submit %s: %w", item, err)
			}
			if ok {
				submitted = append(submitted, item)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	for _, item := range submitted {
		if acceptErr := item.table.accept(item); acceptErr != nil {
			span.RecordError(acceptErr)
			return fmt.Errorf("session: accept %s: %w", item, acceptErr)
		}
	}
	return nil
}
