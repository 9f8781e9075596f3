// Package topo implements a generic, stable topological sort used by
// the session to compute a safe commit order for pending changes.
package topo

import "fmt"

// CycleError reports a dependency cycle found while sorting. Items
// holds the items on the cycle, in the order the cycle was discovered,
// as a closed path: the first item appears again at the end.
type CycleError[T any] struct {
	Items []T
}

func (e *CycleError[T]) Error() string {
	return fmt.Sprintf("topo: cycle detected among %d item(s)", len(e.Items))
}

const (
	markUnvisited = 0
	markVisiting  = 1
	markDone      = 2
)

// Sort returns items ordered so that every predecessor of an item (per
// preds) precedes it in the result. Ties are broken by the input
// order. Item identity is by == (callers should pass pointer types so
// that structurally-equal-but-distinct items are never conflated).
//
// Predecessors returned by preds that do not appear in items are
// ignored — they are not pending and need no ordering.
//
// On a cycle, Sort returns a *CycleError[T] naming the items on the
// cycle.
func Sort[T comparable](items []T, preds func(T) []T) ([]T, error) {
	inSet := make(map[T]bool, len(items))
	for _, it := range items {
		inSet[it] = true
	}

	marks := make(map[T]int, len(items))
	result := make([]T, 0, len(items))

	var stack []T
	var visit func(item T) error
	visit = func(item T) error {
		switch marks[item] {
		case markDone:
			return nil
		case markVisiting:
			cycle := cycleFrom(stack, item)
			return &CycleError[T]{Items: cycle}
		}
		marks[item] = markVisiting
		stack = append(stack, item)
		for _, p := range preds(item) {
			if !inSet[p] {
				continue
			}
			if err := visit(p); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[item] = markDone
		result = append(result, item)
		return nil
	}

	for _, it := range items {
		if err := visit(it); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// cycleFrom extracts the cyclic suffix of stack starting at the first
// occurrence of item, and appends item again to close the path.
func cycleFrom[T comparable](stack []T, item T) []T {
	for i, s := range stack {
		if s == item {
			cycle := make([]T, len(stack)-i)
			copy(cycle, stack[i:])
			return append(cycle, item)
		}
	}
	return append(append([]T{}, stack...), item)
}
