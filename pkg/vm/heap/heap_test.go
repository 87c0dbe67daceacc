package heap

import (
	"testing"

	"github.com/chronolab/chronovm/pkg/vm/ir"
)

func TestAlloc_AssignsSequentialAddressesAndLeavesInputUntouched(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})

	next1, a1 := Alloc(state, ir.IntValue(10))
	next2, a2 := Alloc(next1, ir.IntValue(20))

	if a1 != "heap@0" || a2 != "heap@1" {
		t.Fatalf("got addresses %q, %q", a1, a2)
	}
	if len(state.Heap) != 0 {
		t.Fatalf("Alloc mutated its input state, heap has %d entries", len(state.Heap))
	}
	if len(next1.Heap) != 1 || len(next2.Heap) != 2 {
		t.Fatalf("unexpected heap sizes: %d, %d", len(next1.Heap), len(next2.Heap))
	}
}

func TestRead_MissingAddressReturnsHeapAccessViolation(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})

	_, err := Read(state, "heap@999")
	if err == nil {
		t.Fatal("expected error reading unallocated address")
	}
}

func TestRead_ReturnsIndependentCopy(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})
	state, addr := Alloc(state, ir.ListVal(ir.NewListValue().WithAppend("heap@0")))

	v1, err := Read(state, addr)
	if err != nil {
		t.Fatal(err)
	}
	v1.List.Elements[0] = "heap@mutated"

	v2, err := Read(state, addr)
	if err != nil {
		t.Fatal(err)
	}
	if v2.List.Elements[0] != "heap@0" {
		t.Fatalf("mutating a Read result leaked into the heap: %v", v2.List.Elements)
	}
}

func TestReplace_PreservesAddressIdentity(t *testing.T) {
	state := ir.NewInitialState(ir.Program{})
	state, addr := Alloc(state, ir.ObjectVal(ir.NewObjectValue()))

	updated := ir.ObjectVal(ir.NewObjectValue().WithProperty("x", "heap@7"))
	next := Replace(state, addr, updated)

	v, err := Read(next, addr)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := v.Object.Values["x"]; !ok || got != "heap@7" {
		t.Fatalf("Replace did not take effect at the same address: %+v", v.Object)
	}
	if len(state.Heap[addr].Object.Values) != 0 {
		t.Fatal("Replace mutated the original state's heap entry")
	}
}
