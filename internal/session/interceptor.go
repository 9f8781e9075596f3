package session

import (
	"context"

	"github.com/entitykit/session/internal/mapping"
	"github.com/entitykit/session/internal/provider"
)

// tableLookup resolves the table backing an entity descriptor, if one
// has been created yet via GetTable.
type tableLookup func(mapping.EntityDescriptor) (tableImpl, bool)

// interceptingProvider is the provider façade (§4.F): it presents the
// same contract as the wrapped provider, but on every execute variant
// that takes a Projector, it wraps that projector so each materialized
// entity is routed through the owning table's onMaterialized before
// the caller sees it. Wrapping happens only when the session already
// has a table for the entity (created by GetTable); it does not create
// one, and for an entity without a table the projector is passed
// through unwrapped, so those rows are not interned.
type interceptingProvider struct {
	inner  provider.Provider
	lookup tableLookup
}

func newInterceptingProvider(inner provider.Provider, lookup tableLookup) *interceptingProvider {
	return &interceptingProvider{inner: inner, lookup: lookup}
}

func (p *interceptingProvider) Execute(ctx context.Context, expr any) (any, error) {
	return p.inner.Execute(ctx, expr)
}

func (p *interceptingProvider) Text(expr any) string {
	return p.inner.Text(expr)
}

func (p *interceptingProvider) GetTable(ctx context.Context, entity mapping.EntityDescriptor) (provider.CRUDTable, error) {
	return p.inner.GetTable(ctx, entity)
}

func (p *interceptingProvider) DoTransacted(ctx context.Context, work func(ctx context.Context) error) error {
	return p.inner.DoTransacted(ctx, work)
}

func (p *interceptingProvider) CreateExecutor() provider.Executor {
	return &interceptingExecutor{inner: p.inner.CreateExecutor(), lookup: p.lookup}
}

type interceptingExecutor struct {
	inner  provider.Executor
	lookup tableLookup
}

func (e *interceptingExecutor) wrap(entity mapping.EntityDescriptor, projector provider.Projector) provider.Projector {
	if projector == nil {
		return nil
	}
	t, ok := e.lookup(entity)
	if !ok {
		return projector
	}
	return func(row provider.Row) (any, error) {
		v, err := projector(row)
		if err != nil {
			return nil, err
		}
		return t.onMaterialized(v)
	}
}

func (e *interceptingExecutor) Execute(ctx context.Context, cmd provider.Command, entity mapping.EntityDescriptor, projector provider.Projector) (provider.Cursor, error) {
	return e.inner.Execute(ctx, cmd, entity, e.wrap(entity, projector))
}

func (e *interceptingExecutor) ExecuteDeferred(ctx context.Context, cmd provider.Command, entity mapping.EntityDescriptor, projector provider.Projector) ([]any, error) {
	return e.inner.ExecuteDeferred(ctx, cmd, entity, e.wrap(entity, projector))
}

func (e *interceptingExecutor) ExecuteCommand(ctx context.Context, cmd provider.Command) (int64, error) {
	return e.inner.ExecuteCommand(ctx, cmd)
}

var (
	_ provider.Provider = (*interceptingProvider)(nil)
	_ provider.Executor = (*interceptingExecutor)(nil)
)
