// Package gc implements ChronoVM's reachability garbage collector: a single
// mark-sweep pass over a VMState's heap and environment records. There is no
// incremental or generational variant; the governing specification calls
// for exactly one pass run, at most, on the final state of a completed run.
package gc

import (
	"sort"

	"github.com/chronolab/chronovm/pkg/vm/ir"
)

// Collect returns a new VMState whose heap and environment records contain
// only entries reachable from the roots (operand stack, current and global
// environments, and every environment referenced by an active call-stack
// frame). Allocation and environment counters are left untouched: addresses
// are never reused, reclaimed or not.
func Collect(state ir.VMState) ir.VMState {
	liveHeap := map[ir.HeapAddress]bool{}
	liveEnv := map[ir.EnvironmentAddress]bool{}

	var roots []ir.EnvironmentAddress
	roots = append(roots, state.CurrentEnvironment, state.GlobalEnvironment)
	for _, frame := range state.CallStack {
		roots = append(roots, frame.Environment)
	}
	for _, r := range sortedEnvRoots(roots) {
		markEnv(state, r, liveHeap, liveEnv)
	}
	for _, addr := range state.OperandStack {
		markHeap(state, addr, liveHeap, liveEnv)
	}

	heap := make(map[ir.HeapAddress]ir.HeapValue, len(liveHeap))
	for addr := range liveHeap {
		heap[addr] = state.Heap[addr]
	}

	envs := make(map[ir.EnvironmentAddress]ir.EnvironmentRecord, len(liveEnv))
	for addr := range liveEnv {
		envs[addr] = state.EnvironmentRecords[addr]
	}

	next := state
	next.Heap = heap
	next.EnvironmentRecords = envs
	return next
}

func sortedEnvRoots(roots []ir.EnvironmentAddress) []ir.EnvironmentAddress {
	out := make([]ir.EnvironmentAddress, len(roots))
	copy(out, roots)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func markEnv(state ir.VMState, addr ir.EnvironmentAddress, liveHeap map[ir.HeapAddress]bool, liveEnv map[ir.EnvironmentAddress]bool) {
	if liveEnv[addr] {
		return
	}
	rec, ok := state.EnvironmentRecords[addr]
	if !ok {
		return
	}
	liveEnv[addr] = true

	names := make([]string, 0, len(rec.Bindings))
	for name := range rec.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		markHeap(state, rec.Bindings[name], liveHeap, liveEnv)
	}

	if rec.Parent != nil {
		markEnv(state, *rec.Parent, liveHeap, liveEnv)
	}
}

func markHeap(state ir.VMState, addr ir.HeapAddress, liveHeap map[ir.HeapAddress]bool, liveEnv map[ir.EnvironmentAddress]bool) {
	if liveHeap[addr] {
		return
	}
	v, ok := state.Heap[addr]
	if !ok {
		return
	}
	liveHeap[addr] = true

	switch v.Kind {
	case ir.KindFunction:
		markEnv(state, v.Fn.Environment, liveHeap, liveEnv)
	case ir.KindObject:
		keys := make([]string, len(v.Object.Keys))
		copy(keys, v.Object.Keys)
		sort.Strings(keys)
		for _, k := range keys {
			markHeap(state, v.Object.Values[k], liveHeap, liveEnv)
		}
	case ir.KindList:
		for _, e := range v.List.Elements {
			markHeap(state, e, liveHeap, liveEnv)
		}
	}
}
