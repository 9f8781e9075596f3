package session

import (
	"context"
	"fmt"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
)

// tableImpl is the polymorphic, non-generic capability set §9 asks
// for: "a polymorphic table capability set... keyed by entity
// descriptor; no open inheritance hierarchy is required." *table
// implements it; the generic SessionTable[T] (session_table.go) is a
// thin typed façade over that *table.
type tableImpl interface {
	entityDescriptor() mapping.EntityDescriptor
	onMaterialized(instance any) (any, error)
	submit(ctx context.Context, item *TrackedItem) (bool, error)
	accept(item *TrackedItem) error
	getTracked(instance any) (*TrackedItem, bool)
	getFromCache(key any) (any, bool)
	trackedItems() []*TrackedItem
}

// table is the per-entity-type identity map and change tracker (§4.E).
// It exclusively owns identityCache and tracked (§5).
type table struct {
	entity  mapping.EntityDescriptor
	mapping mapping.Mapping
	crud    provider.CRUDTable

	identityCache map[any]any          // key -> canonical instance
	tracked       map[any]*TrackedItem // instance -> tracked item
}

func newTable(entity mapping.EntityDescriptor, m mapping.Mapping, crud provider.CRUDTable) *table {
	return &table{
		entity:        entity,
		mapping:       m,
		crud:          crud,
		identityCache: make(map[any]any),
		tracked:       make(map[any]*TrackedItem),
	}
}

func (t *table) entityDescriptor() mapping.EntityDescriptor { return t.entity }

// GetByID delegates straight to the underlying CRUD table; identity
// mapping applies only to already-tracked instances (§4.E).
func (t *table) GetByID(ctx context.Context, key any) (any, bool, error) {
	v, err := t.crud.GetByID(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

// SetSubmitAction implements the rules in §4.E.
func (t *table) SetSubmitAction(instance any, action SubmitAction) error {
	if !validSubmitAction(action) {
		return &InvalidActionError{Action: action}
	}

	key, err := t.mapping.PrimaryKey(t.entity, instance)
	if err != nil {
		return err
	}

	if cached, ok := t.identityCache[key]; ok && cached != instance {
		cachedItem, tracked := t.tracked[cached]
		if !tracked || cachedItem.state != SubmitDelete {
			return &IdentityConflictError{Key: key}
		}
		// The cached instance is pending Delete and this is a
		// different instance reusing its key: a permitted transient
		// state (§3 invariants). Leave identityCache pointing at the
		// instance being deleted until accept() promotes the new one.
	} else if !ok {
		t.identityCache[key] = instance
	}

	existing := t.tracked[instance]
	item := &TrackedItem{table: t, instance: instance, state: action}

	if action == SubmitPossibleUpdate {
		if err := t.beginChangeDetection(item, existing); err != nil {
			return err
		}
	} else if existing != nil {
		item.original = existing.original
		item.subscribed = existing.subscribed
	}

	t.tracked[instance] = item
	return nil
}

// beginChangeDetection picks the snapshot or subscription strategy for
// an item entering PossibleUpdate, per §4.E / §9. If a subscription
// already exists for this instance (per a prior tracked item), it is
// reused rather than re-subscribing (invariant 3). A Clone failure is
// returned rather than swallowed: leaving original nil and subscribed
// false would violate invariant 2 ("never both false") and silently
// degrade the item to "never modified" for its whole PossibleUpdate
// lifetime.
func (t *table) beginChangeDetection(item *TrackedItem, existing *TrackedItem) error {
	if existing != nil && existing.subscribed {
		item.subscribed = true
		return nil
	}
	if notifier, ok := item.instance.(Notifier); ok {
		instance := item.instance
		notifier.Subscribe(func() { t.onBeforeChange(instance) })
		item.subscribed = true
		return nil
	}
	clone, err := t.mapping.Clone(t.entity, item.instance)
	if err != nil {
		return fmt.Errorf("session: begin change detection for %s: %w", fmtEntity(t.entity), err)
	}
	item.original = clone
	return nil
}

// onBeforeChange is the change-notification handler (§4.E). It fires
// when a subscribed instance signals it is about to change. Only the
// first notification after entering PossibleUpdate captures a
// snapshot; later notifications are no-ops because the item is no
// longer in PossibleUpdate.
func (t *table) onBeforeChange(instance any) {
	item, ok := t.tracked[instance]
	if !ok || item.state != SubmitPossibleUpdate {
		return
	}
	clone, err := t.mapping.Clone(t.entity, instance)
	if err != nil {
		return
	}
	t.tracked[instance] = &TrackedItem{
		table:      t,
		instance:   instance,
		original:   clone,
		state:      SubmitUpdate,
		subscribed: true,
	}
}

// GetSubmitAction implements Mapping-consulting resolution of
// PossibleUpdate into Update/None (§4.C's effective_action).
func (t *table) GetSubmitAction(instance any) SubmitAction {
	item, ok := t.tracked[instance]
	if !ok {
		return SubmitNone
	}
	return t.effectiveAction(item)
}

func (t *table) effectiveAction(item *TrackedItem) SubmitAction {
	if item.state != SubmitPossibleUpdate {
		return item.state
	}
	modified, _ := t.isModified(item)
	if modified {
		return SubmitUpdate
	}
	return SubmitNone
}

func (t *table) isModified(item *TrackedItem) (bool, error) {
	if item.original == nil {
		// Subscription strategy: no notification has fired yet, so
		// nothing has changed (§4.E/open questions: absent original
		// under PossibleUpdate means "not yet mutated", not an error).
		return false, nil
	}
	return t.mapping.IsModified(t.entity, item.instance, item.original)
}

// onMaterialized interns a freshly projected row (§4.E). It is the
// sole path by which the intercepting provider routes query results
// into this table.
func (t *table) onMaterialized(instance any) (any, error) {
	key, err := t.mapping.PrimaryKey(t.entity, instance)
	if err != nil {
		return nil, err
	}
	if cached, ok := t.identityCache[key]; ok {
		return cached, nil
	}
	t.identityCache[key] = instance
	item := &TrackedItem{table: t, instance: instance, state: SubmitPossibleUpdate}
	if err := t.beginChangeDetection(item, nil); err != nil {
		return nil, err
	}
	t.tracked[instance] = item
	return instance, nil
}

// submit translates item's state into a CRUD call, per the table in
// §4.E. It returns whether a call was made, so the session knows
// whether to later accept() this item.
func (t *table) submit(ctx context.Context, item *TrackedItem) (bool, error) {
	switch item.state {
	case SubmitDelete:
		if err := t.crud.Delete(ctx, item.instance); err != nil {
			return false, err
		}
		return true, nil
	case SubmitInsert:
		if err := t.crud.Insert(ctx, item.instance); err != nil {
			return false, err
		}
		return true, nil
	case SubmitInsertOrUpdate:
		if err := t.crud.InsertOrUpdate(ctx, item.instance); err != nil {
			return false, err
		}
		return true, nil
	case SubmitUpdate:
		if err := t.crud.Update(ctx, item.instance); err != nil {
			return false, err
		}
		return true, nil
	case SubmitPossibleUpdate:
		modified, err := t.isModified(item)
		if err != nil {
			return false, err
		}
		if !modified {
			return false, nil
		}
		if err := t.crud.Update(ctx, item.instance); err != nil {
			return false, err
		}
		return true, nil
	case SubmitNone:
		return false, nil
	default:
		return false, &InvalidActionError{Action: item.state}
	}
}

// accept performs the post-commit state transition for an item that
// was submitted, per the table in §4.E. The CRUD call already
// committed by the time accept runs, so an error here reports a
// bookkeeping failure (the write persisted; the in-memory tracking
// state could not be re-armed) rather than something the caller can
// roll back.
func (t *table) accept(item *TrackedItem) error {
	switch item.state {
	case SubmitDelete:
		key, err := t.mapping.PrimaryKey(t.entity, item.instance)
		if err == nil {
			if cached, ok := t.identityCache[key]; ok && cached == item.instance {
				delete(t.identityCache, key)
			}
		}
		delete(t.tracked, item.instance)
		return nil
	case SubmitInsert, SubmitInsertOrUpdate:
		key, err := t.mapping.PrimaryKey(t.entity, item.instance)
		if err == nil {
			t.identityCache[key] = item.instance
		}
		return t.reenterPossibleUpdate(item.instance)
	case SubmitPossibleUpdate, SubmitUpdate:
		return t.reenterPossibleUpdate(item.instance)
	case SubmitNone:
		// nothing to do
	}
	return nil
}

func (t *table) reenterPossibleUpdate(instance any) error {
	prev := t.tracked[instance]
	item := &TrackedItem{table: t, instance: instance, state: SubmitPossibleUpdate}
	if err := t.beginChangeDetection(item, prev); err != nil {
		return err
	}
	t.tracked[instance] = item
	return nil
}

func (t *table) getTracked(instance any) (*TrackedItem, bool) {
	item, ok := t.tracked[instance]
	return item, ok
}

func (t *table) getFromCache(key any) (any, bool) {
	v, ok := t.identityCache[key]
	return v, ok
}

func (t *table) trackedItems() []*TrackedItem {
	items := make([]*TrackedItem, 0, len(t.tracked))
	for _, item := range t.tracked {
		items = append(items, item)
	}
	return items
}

// pendingDeleteForKey returns the tracked item, if any, pending Delete
// for the given key — used by commit ordering to guarantee
// delete-before-insert on key reuse (§3 invariant 5, §8 property 7).
func (t *table) pendingDeleteForKey(key any) (*TrackedItem, bool) {
	for instance, item := range t.tracked {
		if item.state != SubmitDelete {
			continue
		}
		k, err := t.mapping.PrimaryKey(t.entity, instance)
		if err != nil {
			continue
		}
		if k == key {
			return item, true
		}
	}
	return nil, false
}

var _ tableImpl = (*table)(nil)

func fmtEntity(e mapping.EntityDescriptor) string {
	return fmt.Sprintf("%s(%s)", e.TableID, e.Type)
}
