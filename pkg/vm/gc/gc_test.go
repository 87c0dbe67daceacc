package gc

import (
	"testing"

	"github.com/chronolab/chronovm/pkg/vm/environment"
	"github.com/chronolab/chronovm/pkg/vm/heap"
	"github.com/chronolab/chronovm/pkg/vm/ir"
)

func TestCollect_ReclaimsOrphanedHeapEntry(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})
	state, orphanAddr := heap.Alloc(state, ir.IntValue(1))
	state, liveAddr := heap.Alloc(state, ir.IntValue(2))
	state, err := environment.Bind(state, state.GlobalEnvironment, "kept", liveAddr)
	if err != nil {
		t.Fatal(err)
	}
	_ = orphanAddr

	collected := Collect(state)

	if _, ok := collected.Heap[liveAddr]; !ok {
		t.Fatal("GC reclaimed a reachable address")
	}
	if _, ok := collected.Heap[orphanAddr]; ok {
		t.Fatal("GC failed to reclaim an unreachable address")
	}
}

func TestCollect_DoesNotTouchCounters(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})
	state, _ = heap.Alloc(state, ir.IntValue(1))
	state, _ = heap.Alloc(state, ir.IntValue(2))

	collected := Collect(state)
	if collected.AllocationCounter != state.AllocationCounter {
		t.Fatalf("GC must not rewind the allocation counter: got %d, want %d",
			collected.AllocationCounter, state.AllocationCounter)
	}
}

func TestCollect_WalksClosureEnvironment(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})
	global := state.GlobalEnvironment
	state, capturedEnv := environment.Create(state, &global)
	state, capturedVal := heap.Alloc(state, ir.IntValue(99))
	state, err := environment.Bind(state, capturedEnv, "captured", capturedVal)
	if err != nil {
		t.Fatal(err)
	}

	fn := ir.FunctionVal(ir.FunctionValue{Entry: 0, Environment: capturedEnv})
	state, fnAddr := heap.Alloc(state, fn)
	state.OperandStack = []ir.HeapAddress{fnAddr}

	collected := Collect(state)
	if _, ok := collected.Heap[capturedVal]; !ok {
		t.Fatal("GC must keep values reachable through a closure's captured environment")
	}
	if _, ok := collected.EnvironmentRecords[capturedEnv]; !ok {
		t.Fatal("GC must keep a closure's captured environment record")
	}
}

func TestCollect_KeepsEntriesReachableOnlyFromCallStack(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})
	global := state.GlobalEnvironment
	state, frameEnv := environment.Create(state, &global)
	state, val := heap.Alloc(state, ir.IntValue(7))
	state, err := environment.Bind(state, frameEnv, "local", val)
	if err != nil {
		t.Fatal(err)
	}
	state.CallStack = []ir.StackFrame{{ReturnAddress: 0, Environment: frameEnv}}
	state.CurrentEnvironment = global

	collected := Collect(state)
	if _, ok := collected.Heap[val]; !ok {
		t.Fatal("GC must treat every active call-stack frame's environment as a root")
	}
}
