package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
)

// Customer/Order is the fixture pair used throughout these tests: Order
// depends on Customer, matching the spec's worked scenarios (S1, S4).
type Customer struct {
	ID     int `session:"pk"`
	Name   string
	Orders []*Order `session:"dependents"`
}

type Order struct {
	ID         int `session:"pk"`
	CustomerID int
	Customer   *Customer `session:"dependsOn"`
	Total      int
}

type testFixture struct {
	session    *Session
	mapping    *mapping.StructMapper
	provider   *fakeProvider
	calls      *[]string
	custTable  *SessionTable[*Customer]
	orderTable *SessionTable[*Order]
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	m := mapping.NewStructMapper()
	custEntity := m.Register("customers", &Customer{})
	orderEntity := m.Register("orders", &Order{})

	calls := &[]string{}
	fp := newFakeProvider()
	fp.register(custEntity, newFakeCRUD("customers", func(v any) any { return v.(*Customer).ID }, calls))
	fp.register(orderEntity, newFakeCRUD("orders", func(v any) any { return v.(*Order).ID }, calls))

	s := New(m, fp)
	ctx := context.Background()

	custTable, err := GetTable[*Customer](ctx, s, "customers")
	require.NoError(t, err)
	orderTable, err := GetTable[*Order](ctx, s, "orders")
	require.NoError(t, err)

	return &testFixture{
		session:    s,
		mapping:    m,
		provider:   fp,
		calls:      calls,
		custTable:  custTable,
		orderTable: orderTable,
	}
}

func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}

// S1: inserting a Customer and an Order that depends on it commits the
// Customer first, regardless of the order SetSubmitAction was called in.
func TestSubmitChangesOrdersDependenciesFirst(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	cust1 := &Customer{ID: 1, Name: "Acme"}
	cust2 := &Customer{ID: 2, Name: "Globex"}
	order := &Order{ID: 10, CustomerID: 1, Customer: cust1, Total: 100}

	require.NoError(t, f.orderTable.SetSubmitAction(order, SubmitInsert))
	require.NoError(t, f.custTable.SetSubmitAction(cust2, SubmitInsert))
	require.NoError(t, f.custTable.SetSubmitAction(cust1, SubmitInsert))

	require.NoError(t, f.session.SubmitChanges(ctx))

	idxCust1 := indexOf(*f.calls, "customers.Insert(1)")
	idxOrder := indexOf(*f.calls, "orders.Insert(10)")
	require.GreaterOrEqual(t, idxCust1, 0)
	require.GreaterOrEqual(t, idxOrder, 0)
	require.Less(t, idxCust1, idxOrder)
}

// S4: deleting a Customer and inserting a different instance that reuses
// the same key is not an identity conflict, and the delete commits before
// the insert.
func TestSetSubmitActionPermitsKeyReuseAfterDelete(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	oldCust := &Customer{ID: 1, Name: "Acme"}
	newCust := &Customer{ID: 1, Name: "Acme II"}

	require.NoError(t, f.custTable.SetSubmitAction(oldCust, SubmitDelete))
	err := f.custTable.SetSubmitAction(newCust, SubmitInsert)
	require.NoError(t, err, "reusing a key pending Delete must not be an identity conflict")

	require.NoError(t, f.session.SubmitChanges(ctx))

	idxDelete := indexOf(*f.calls, "customers.Delete(1)")
	idxInsert := indexOf(*f.calls, "customers.Insert(1)")
	require.GreaterOrEqual(t, idxDelete, 0)
	require.GreaterOrEqual(t, idxInsert, 0)
	require.Less(t, idxDelete, idxInsert)
}

// A genuine identity conflict — two distinct live instances at the same
// key, neither pending Delete — is rejected.
func TestSetSubmitActionRejectsGenuineIdentityConflict(t *testing.T) {
	f := newTestFixture(t)

	a := &Customer{ID: 1, Name: "Acme"}
	b := &Customer{ID: 1, Name: "Acme Duplicate"}

	require.NoError(t, f.custTable.SetSubmitAction(a, SubmitInsert))
	err := f.custTable.SetSubmitAction(b, SubmitInsert)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrIdentityConflict)
}

// A dependency cycle among pending items surfaces as CycleDetectedError
// rather than an arbitrary commit order.
type cycleA struct {
	ID int     `session:"pk"`
	B  *cycleB `session:"dependsOn"`
}

type cycleB struct {
	ID int     `session:"pk"`
	A  *cycleA `session:"dependsOn"`
}

func TestSubmitChangesDetectsCycle(t *testing.T) {
	m := mapping.NewStructMapper()
	aEntity := m.Register("cycle_a", &cycleA{})
	bEntity := m.Register("cycle_b", &cycleB{})

	calls := &[]string{}
	fp := newFakeProvider()
	fp.register(aEntity, newFakeCRUD("cycle_a", func(v any) any { return v.(*cycleA).ID }, calls))
	fp.register(bEntity, newFakeCRUD("cycle_b", func(v any) any { return v.(*cycleB).ID }, calls))

	s := New(m, fp)
	ctx := context.Background()

	aTable, err := GetTable[*cycleA](ctx, s, "cycle_a")
	require.NoError(t, err)
	bTable, err := GetTable[*cycleB](ctx, s, "cycle_b")
	require.NoError(t, err)

	a := &cycleA{ID: 1}
	b := &cycleB{ID: 2}
	a.B = b
	b.A = a

	require.NoError(t, aTable.SetSubmitAction(a, SubmitInsert))
	require.NoError(t, bTable.SetSubmitAction(b, SubmitInsert))

	err = s.SubmitChanges(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCycleDetected)
	var cycleErr *CycleDetectedError
	require.True(t, errors.As(err, &cycleErr))
	require.GreaterOrEqual(t, len(cycleErr.Items), 2)
}

// Snapshot-based change detection (Customer does not implement Notifier):
// no field mutation after the insert commits means no Update is submitted.
func TestPossibleUpdateNoSpuriousUpdate(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	seed := &Customer{ID: 1, Name: "Acme"}
	require.NoError(t, f.custTable.SetSubmitAction(seed, SubmitInsert))
	require.NoError(t, f.session.SubmitChanges(ctx))
	*f.calls = nil

	require.Equal(t, SubmitNone, f.custTable.GetSubmitAction(seed))
	require.NoError(t, f.session.SubmitChanges(ctx))
	require.Empty(t, *f.calls, "an unmodified PossibleUpdate instance must not issue an Update")
}

// Mutating a field after insert is detected by the snapshot strategy and
// produces exactly one Update on the next commit.
func TestPossibleUpdateDetectsMutation(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	seed := &Customer{ID: 1, Name: "Acme"}
	require.NoError(t, f.custTable.SetSubmitAction(seed, SubmitInsert))
	require.NoError(t, f.session.SubmitChanges(ctx))
	*f.calls = nil

	seed.Name = "Acme Renamed"
	require.Equal(t, SubmitUpdate, f.custTable.GetSubmitAction(seed))
	require.NoError(t, f.session.SubmitChanges(ctx))
	require.Equal(t, []string{"customers.Update(1)"}, *f.calls)
}

// onMaterialized interns: the same key projected twice returns the same
// instance rather than a fresh duplicate.
func TestOnMaterializedInterns(t *testing.T) {
	entity := mapping.EntityDescriptor{Type: reflect.TypeOf(Customer{}), TableID: "customers"}
	m := mapping.NewStructMapper()
	m.Register("customers", &Customer{})
	tbl := newTable(entity, m, newFakeCRUD("customers", func(v any) any { return v.(*Customer).ID }, &[]string{}))

	first := &Customer{ID: 1, Name: "Acme"}
	second := &Customer{ID: 1, Name: "Acme (duplicate read)"}

	got1, err := tbl.onMaterialized(first)
	require.NoError(t, err)
	got2, err := tbl.onMaterialized(second)
	require.NoError(t, err)

	require.Same(t, got1, got2)
	require.Same(t, first, got2)
}

// Notifier-based change detection (§6, S6): the subscribed callback fires
// on mutation, capturing a pre-mutation snapshot before the field changes.
type notifyingCustomer struct {
	ID             int `session:"pk"`
	Name           string
	onChange       func()
	subscribeCalls int
}

func (c *notifyingCustomer) Subscribe(onBeforeChange func()) {
	c.subscribeCalls++
	c.onChange = onBeforeChange
}

func (c *notifyingCustomer) Rename(name string) {
	if c.onChange != nil {
		c.onChange()
	}
	c.Name = name
}

func TestSubscriptionStrategyDetectsMutation(t *testing.T) {
	entity := mapping.EntityDescriptor{Type: reflect.TypeOf(notifyingCustomer{}), TableID: "notifying_customers"}
	m := mapping.NewStructMapper()
	m.Register("notifying_customers", &notifyingCustomer{})
	tbl := newTable(entity, m, newFakeCRUD("notifying_customers", func(v any) any { return v.(*notifyingCustomer).ID }, &[]string{}))

	instance := &notifyingCustomer{ID: 1, Name: "Acme"}
	_, err := tbl.onMaterialized(instance)
	require.NoError(t, err)

	require.Equal(t, SubmitNone, tbl.GetSubmitAction(instance))

	instance.Rename("Acme Renamed")
	require.Equal(t, SubmitUpdate, tbl.GetSubmitAction(instance))
}

// A subscription, once established, is reused rather than re-registered
// across PossibleUpdate/Update transitions (invariant 3): renaming twice
// in separate commit cycles is detected both times, and Subscribe is
// called only once.
func TestSubscriptionIsNotReestablished(t *testing.T) {
	entity := mapping.EntityDescriptor{Type: reflect.TypeOf(notifyingCustomer{}), TableID: "notifying_customers"}
	m := mapping.NewStructMapper()
	m.Register("notifying_customers", &notifyingCustomer{})
	crud := newFakeCRUD("notifying_customers", func(v any) any { return v.(*notifyingCustomer).ID }, &[]string{})
	tbl := newTable(entity, m, crud)

	instance := &notifyingCustomer{ID: 1, Name: "Acme"}
	_, err := tbl.onMaterialized(instance)
	require.NoError(t, err)

	instance.Rename("First Rename")
	require.Equal(t, SubmitUpdate, tbl.GetSubmitAction(instance))

	ctx := context.Background()
	item, _ := tbl.getTracked(instance)
	ok, err := tbl.submit(ctx, item)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tbl.accept(item))

	instance.Rename("Second Rename")
	require.Equal(t, SubmitUpdate, tbl.GetSubmitAction(instance))
	require.Equal(t, 1, instance.subscribeCalls)
}

// Transactional all-or-nothing (§7): when a CRUD call inside the
// transaction fails, no tracked item transitions to its post-commit
// state.
func TestSubmitChangesIsAllOrNothing(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	cust := &Customer{ID: 1, Name: "Acme"}
	order := &Order{ID: 10, CustomerID: 1, Customer: cust, Total: 50}

	require.NoError(t, f.custTable.SetSubmitAction(cust, SubmitInsert))
	require.NoError(t, f.orderTable.SetSubmitAction(order, SubmitInsert))

	entity, err := f.mapping.EntityOf(reflect.TypeOf(&Order{}), "orders")
	require.NoError(t, err)
	crud := f.provider.tables[entity]
	crud.failNext = errors.New("transient failure")

	err = f.session.SubmitChanges(ctx)
	require.Error(t, err)

	require.Equal(t, SubmitInsert, f.custTable.GetSubmitAction(cust))
	require.Equal(t, SubmitInsert, f.orderTable.GetSubmitAction(order))
}

// The intercepting provider (§4.F) is the sole path query results reach
// the caller through; this drives it via Session.Provider(), not
// table.onMaterialized directly, so a wrong entity lookup or an
// unwrapped projector in interceptingExecutor would fail this test even
// though it would pass every onMaterialized-only test above.
func TestInterceptingExecutorInternsMaterializedRows(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	custEntity, err := f.mapping.EntityOf(reflect.TypeOf(&Customer{}), "customers")
	require.NoError(t, err)

	// Two rows for the same key, as if the same customer were read
	// twice in one query (S2/S3): the second must intern to the first.
	f.provider.queuedRows = []fakeRow{
		{values: []any{1}},
		{values: []any{1}},
	}
	projector := func(row provider.Row) (any, error) {
		var id int
		if err := row.Scan(&id); err != nil {
			return nil, err
		}
		return &Customer{ID: id, Name: "from query"}, nil
	}

	executor := f.session.Provider().CreateExecutor()
	cursor, err := executor.Execute(ctx, provider.Command{Text: "SELECT id FROM customers"}, custEntity, projector)
	require.NoError(t, err)
	defer cursor.Close()

	require.True(t, cursor.Next(ctx))
	first := cursor.Current().(*Customer)
	require.True(t, cursor.Next(ctx))
	second := cursor.Current().(*Customer)
	require.NoError(t, cursor.Err())
	require.False(t, cursor.Next(ctx))

	require.Same(t, first, second)

	// The interned instance is also the one the table itself tracks,
	// confirming the row passed through this table's onMaterialized
	// rather than some other table's (or none at all).
	tracked, ok := f.custTable.impl.getTracked(first)
	require.True(t, ok)
	require.Equal(t, SubmitPossibleUpdate, tracked.State())
}
