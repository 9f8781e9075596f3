package session

import (
	"context"
	"fmt"
	"reflect"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
)

// fakeCRUD is an in-memory CRUDTable used to unit-test the session
// without a real SQL backend, the way beads's internal/storage/memory
// backs its unit tests.
type fakeCRUD struct {
	label    string
	keyFunc  func(any) any
	store    map[any]any
	calls    *[]string
	failNext error
}

func newFakeCRUD(label string, keyFunc func(any) any, calls *[]string) *fakeCRUD {
	return &fakeCRUD{label: label, keyFunc: keyFunc, store: make(map[any]any), calls: calls}
}

func (f *fakeCRUD) record(op string, instance any) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	*f.calls = append(*f.calls, fmt.Sprintf("%s.%s(%v)", f.label, op, f.keyFunc(instance)))
	return nil
}

func (f *fakeCRUD) Insert(_ context.Context, instance any) error {
	if err := f.record("Insert", instance); err != nil {
		return err
	}
	f.store[f.keyFunc(instance)] = instance
	return nil
}

func (f *fakeCRUD) Update(_ context.Context, instance any) error {
	if err := f.record("Update", instance); err != nil {
		return err
	}
	f.store[f.keyFunc(instance)] = instance
	return nil
}

func (f *fakeCRUD) InsertOrUpdate(_ context.Context, instance any) error {
	if err := f.record("InsertOrUpdate", instance); err != nil {
		return err
	}
	f.store[f.keyFunc(instance)] = instance
	return nil
}

func (f *fakeCRUD) Delete(_ context.Context, instance any) error {
	if err := f.record("Delete", instance); err != nil {
		return err
	}
	delete(f.store, f.keyFunc(instance))
	return nil
}

func (f *fakeCRUD) GetByID(_ context.Context, key any) (any, error) {
	v, ok := f.store[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

// fakeProvider is a minimal provider.Provider: DoTransacted just runs
// work inline (no real rollback of the in-memory store — tests assert
// on tracked state and the CRUD call log, not on store contents after
// a failed commit). queuedRows seeds the next CreateExecutor's Execute
// call, the way a real Executor would stream rows from a query.
type fakeProvider struct {
	tables     map[mapping.EntityDescriptor]*fakeCRUD
	queuedRows []fakeRow
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{tables: make(map[mapping.EntityDescriptor]*fakeCRUD)}
}

func (p *fakeProvider) register(entity mapping.EntityDescriptor, crud *fakeCRUD) {
	p.tables[entity] = crud
}

func (p *fakeProvider) Execute(ctx context.Context, expr any) (any, error) { return nil, nil }
func (p *fakeProvider) Text(expr any) string                               { return fmt.Sprint(expr) }

func (p *fakeProvider) GetTable(ctx context.Context, entity mapping.EntityDescriptor) (provider.CRUDTable, error) {
	crud, ok := p.tables[entity]
	if !ok {
		return nil, fmt.Errorf("fakeProvider: no table registered for %s", entity.TableID)
	}
	return crud, nil
}

func (p *fakeProvider) DoTransacted(ctx context.Context, work func(ctx context.Context) error) error {
	return work(ctx)
}

func (p *fakeProvider) CreateExecutor() provider.Executor { return &fakeExecutor{rows: p.queuedRows} }

// fakeRow is an in-memory provider.Row: Scan copies its fixed values
// into the caller's destinations positionally, the way a real
// *sql.Rows.Scan does against column values.
type fakeRow struct{ values []any }

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) > len(r.values) {
		return fmt.Errorf("fakeRow: have %d values, want %d", len(r.values), len(dest))
	}
	for i, d := range dest {
		rv := reflect.ValueOf(d)
		if rv.Kind() != reflect.Ptr {
			return fmt.Errorf("fakeRow: dest %d is not a pointer", i)
		}
		rv.Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

// fakeExecutor streams the rows queued on the fakeProvider that built
// it, running each through whatever projector the caller (or the
// intercepting provider wrapping this one) supplies.
type fakeExecutor struct{ rows []fakeRow }

func (e *fakeExecutor) Execute(ctx context.Context, cmd provider.Command, entity mapping.EntityDescriptor, projector provider.Projector) (provider.Cursor, error) {
	return &sliceCursor{rows: e.rows, projector: projector}, nil
}

func (e *fakeExecutor) ExecuteDeferred(ctx context.Context, cmd provider.Command, entity mapping.EntityDescriptor, projector provider.Projector) ([]any, error) {
	cursor := &sliceCursor{rows: e.rows, projector: projector}
	var out []any
	for cursor.Next(ctx) {
		out = append(out, cursor.Current())
	}
	return out, cursor.Err()
}

func (e *fakeExecutor) ExecuteCommand(ctx context.Context, cmd provider.Command) (int64, error) {
	return 0, nil
}

// sliceCursor projects fakeRows lazily, one per Next call, matching
// provider.Cursor's "only materialize on demand" contract.
type sliceCursor struct {
	rows      []fakeRow
	projector provider.Projector
	idx       int
	current   any
	err       error
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if c.err != nil || c.idx >= len(c.rows) {
		return false
	}
	row := c.rows[c.idx]
	c.idx++
	v, err := c.projector(row)
	if err != nil {
		c.err = err
		return false
	}
	c.current = v
	return true
}

func (c *sliceCursor) Current() any { return c.current }
func (c *sliceCursor) Err() error   { return c.err }
func (c *sliceCursor) Close() error { return nil }
