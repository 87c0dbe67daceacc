// Package heap implements the deterministic-address allocator and tagged
// value store described by the governing specification's heap component.
// It exposes three operations, Alloc, Read and Replace; there is no free API,
// since reclamation is solely the responsibility of pkg/vm/gc.
package heap

import (
	"fmt"

	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/vmerrors"
)

// Alloc appends value at a freshly-minted address derived from the state's
// allocation counter and returns the state reflecting that allocation
// alongside the new address. state itself is left untouched.
func Alloc(state ir.VMState, value ir.HeapValue) (ir.VMState, ir.HeapAddress) {
	addr := ir.HeapAddress(fmt.Sprintf("heap@%d", state.AllocationCounter))

	heap := make(map[ir.HeapAddress]ir.HeapValue, len(state.Heap)+1)
	for k, v := range state.Heap {
		heap[k] = v
	}
	heap[addr] = value.Clone()

	next := state
	next.Heap = heap
	next.AllocationCounter++
	return next, addr
}

// Read looks up addr and returns its value, or a HEAP_ACCESS_VIOLATION if
// the address has no live binding (including after GC reclaimed it).
func Read(state ir.VMState, addr ir.HeapAddress) (ir.HeapValue, error) {
	v, ok := state.Heap[addr]
	if !ok {
		return ir.HeapValue{}, vmerrors.New(
			vmerrors.HeapAccessViolation,
			fmt.Sprintf("no live heap value at %s", addr),
			state.PC, state.StepCount, nil,
		)
	}
	return v.Clone(), nil
}

// Replace returns a new state with the value at an *existing* address
// replaced in place, preserving reference identity for every binding
// aliasing addr. Used by SET_PROPERTY, LIST_APPEND and LIST_SET, which
// mutate the value a heap address refers to without allocating a new one.
func Replace(state ir.VMState, addr ir.HeapAddress, value ir.HeapValue) ir.VMState {
	heap := make(map[ir.HeapAddress]ir.HeapValue, len(state.Heap))
	for k, v := range state.Heap {
		heap[k] = v
	}
	heap[addr] = value.Clone()

	next := state
	next.Heap = heap
	return next
}
