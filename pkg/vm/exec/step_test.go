package exec

import (
	"testing"

	"github.com/chronolab/chronovm/pkg/vm/heap"
	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/vmerrors"
)

func run(t *testing.T, program ir.Program) ir.VMState {
	t.Helper()
	state := ir.NewInitialState(program)
	for state.IsRunning {
		next, err := Step(state)
		if err != nil {
			t.Fatalf("unexpected step error: %v", err)
		}
		state = next
	}
	return state
}

func topValue(t *testing.T, state ir.VMState) ir.HeapValue {
	t.Helper()
	if len(state.OperandStack) == 0 {
		t.Fatal("operand stack is empty")
	}
	addr := state.OperandStack[len(state.OperandStack)-1]
	v, err := heap.Read(state, addr)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestStep_ArithmeticPopsRightOperandFirst(t *testing.T) {
	// 10 - 3 must be 7, not -7: SUB pops the right operand first.
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(10)},
		{Op: ir.OpLoadConst, Const: ir.IntValue(3)},
		{Op: ir.OpSub},
		{Op: ir.OpHalt},
	}}
	final := run(t, program)
	v := topValue(t, final)
	if v.Kind != ir.KindInt || v.Int != 7 {
		t.Fatalf("expected 7, got %+v", v)
	}
}

func TestStep_DivisionByZero(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(1)},
		{Op: ir.OpLoadConst, Const: ir.IntValue(0)},
		{Op: ir.OpDiv},
		{Op: ir.OpHalt},
	}}
	state := ir.NewInitialState(program)
	for i := 0; i < 2; i++ {
		next, err := Step(state)
		if err != nil {
			t.Fatal(err)
		}
		state = next
	}
	_, err := Step(state)
	vmErr, ok := err.(*vmerrors.VMError)
	if !ok || vmErr.Type != vmerrors.DivisionByZero {
		t.Fatalf("expected DIVISION_BY_ZERO, got %v", err)
	}
}

func TestStep_StackUnderflow(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{{Op: ir.OpAdd}}}
	_, err := Step(ir.NewInitialState(program))
	vmErr, ok := err.(*vmerrors.VMError)
	if !ok || vmErr.Type != vmerrors.StackUnderflow {
		t.Fatalf("expected STACK_UNDERFLOW, got %v", err)
	}
}

func TestStep_UnboundVariable(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{{Op: ir.OpLoad, Name: "missing"}}}
	_, err := Step(ir.NewInitialState(program))
	vmErr, ok := err.(*vmerrors.VMError)
	if !ok || vmErr.Type != vmerrors.UnboundVariable {
		t.Fatalf("expected UNBOUND_VARIABLE, got %v", err)
	}
}

func TestStep_PCOutOfBounds(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{{Op: ir.OpHalt}}}
	state := ir.NewInitialState(program)
	state.PC = 5
	_, err := Step(state)
	vmErr, ok := err.(*vmerrors.VMError)
	if !ok || vmErr.Type != vmerrors.PCOutOfBounds {
		t.Fatalf("expected PC_OUT_OF_BOUNDS, got %v", err)
	}
}

func TestStep_JumpIfFalseSkipsOnFalsyZero(t *testing.T) {
	// if (0) { push 1 } else { push 2 }; result must be 2.
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(0)},
		{Op: ir.OpJumpIfFalse, Target: 4},
		{Op: ir.OpLoadConst, Const: ir.IntValue(1)},
		{Op: ir.OpJump, Target: 5},
		{Op: ir.OpLoadConst, Const: ir.IntValue(2)},
		{Op: ir.OpHalt},
	}}
	final := run(t, program)
	v := topValue(t, final)
	if v.Int != 2 {
		t.Fatalf("expected 2, got %+v", v)
	}
}

func TestStep_DupAndPop(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(9)},
		{Op: ir.OpDup},
		{Op: ir.OpPop},
		{Op: ir.OpHalt},
	}}
	final := run(t, program)
	if len(final.OperandStack) != 1 {
		t.Fatalf("expected one value left on stack, got %d", len(final.OperandStack))
	}
	if topValue(t, final).Int != 9 {
		t.Fatal("DUP/POP changed the surviving value")
	}
}

func TestStep_Print(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.StringValue("hi")},
		{Op: ir.OpPrint},
		{Op: ir.OpLoadConst, Const: ir.BoolValue(true)},
		{Op: ir.OpPrint},
		{Op: ir.OpHalt},
	}}
	final := run(t, program)
	if len(final.Output) != 2 || final.Output[0] != "hi" || final.Output[1] != "True" {
		t.Fatalf("unexpected output: %v", final.Output)
	}
}

func TestStep_ClosureCapturesDefiningEnvironment(t *testing.T) {
	// x = 41; f = fn() { return x + 1 }; result = f(); halt.
	// [0] LOAD_CONST 41  [1] STORE x   [2] JUMP 7 (skip body)
	// [3] LOAD x  [4] LOAD_CONST 1  [5] ADD  [6] RET
	// [7] MAKE_FUNCTION->3  [8] CALL 0  [9] HALT
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(41)}, // 0
		{Op: ir.OpStore, Name: "x"},                  // 1
		{Op: ir.OpJump, Target: 7},                   // 2
		{Op: ir.OpLoad, Name: "x"},                   // 3
		{Op: ir.OpLoadConst, Const: ir.IntValue(1)},  // 4
		{Op: ir.OpAdd},                               // 5
		{Op: ir.OpRet},                                // 6
		{Op: ir.OpMakeFunction, Target: 3},            // 7
		{Op: ir.OpCall, ArgCount: 0},                   // 8
		{Op: ir.OpHalt},                               // 9
	}}

	final := run(t, program)
	v := topValue(t, final)
	if v.Kind != ir.KindInt || v.Int != 42 {
		t.Fatalf("expected closure to return 42, got %+v", v)
	}
}

func TestStep_ObjectPropertyRoundTrip(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpNewObject},                         // 0
		{Op: ir.OpStore, Name: "o"},                  // 1
		{Op: ir.OpLoad, Name: "o"},                   // 2: obj pushed first
		{Op: ir.OpLoadConst, Const: ir.IntValue(5)},  // 3: value pushed last, on top
		{Op: ir.OpSetProperty, Name: "count"},        // 4: SET_PROPERTY pops value, then obj
		{Op: ir.OpLoad, Name: "o"},                   // 5: reload the same object
		{Op: ir.OpGetProperty, Name: "count"},        // 6
		{Op: ir.OpHalt},
	}}
	final := run(t, program)
	v := topValue(t, final)
	if v.Int != 5 {
		t.Fatalf("expected 5, got %+v", v)
	}
}

func TestStep_ObjectGetMissingPropertyFails(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpNewObject},
		{Op: ir.OpGetProperty, Name: "nope"},
	}}
	state := ir.NewInitialState(program)
	state, err := Step(state)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Step(state)
	vmErr, ok := err.(*vmerrors.VMError)
	if !ok || vmErr.Type != vmerrors.PropertyNotFound {
		t.Fatalf("expected PROPERTY_NOT_FOUND, got %v", err)
	}
}

func TestStep_ListAppendAliasesOriginalAddress(t *testing.T) {
	// Two variables bound to the same list address must both see an append.
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpNewList},            // 0
		{Op: ir.OpStore, Name: "a"},   // 1
		{Op: ir.OpLoad, Name: "a"},    // 2
		{Op: ir.OpStore, Name: "b"},   // 3 (b aliases a's address)
		{Op: ir.OpLoad, Name: "a"},    // 4: list pushed first
		{Op: ir.OpLoadConst, Const: ir.IntValue(7)}, // 5: value pushed last, on top
		{Op: ir.OpListAppend},         // 6
		{Op: ir.OpPop},                // 7 (drop the append's return value)
		{Op: ir.OpLoad, Name: "b"},    // 8
		{Op: ir.OpListLen},            // 9
		{Op: ir.OpHalt},
	}}
	final := run(t, program)
	v := topValue(t, final)
	if v.Int != 1 {
		t.Fatalf("expected alias b to observe the append through a, got length %d", v.Int)
	}
}

func TestStep_ListGetOutOfBounds(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpNewList},                           // list pushed first
		{Op: ir.OpLoadConst, Const: ir.IntValue(0)},  // index pushed last, on top
		{Op: ir.OpListGet},
	}}
	state := ir.NewInitialState(program)
	for i := 0; i < 2; i++ {
		next, err := Step(state)
		if err != nil {
			t.Fatal(err)
		}
		state = next
	}
	_, err := Step(state)
	vmErr, ok := err.(*vmerrors.VMError)
	if !ok || vmErr.Type != vmerrors.HeapAccessViolation {
		t.Fatalf("expected HEAP_ACCESS_VIOLATION, got %v", err)
	}
}

func TestStep_RetWithEmptyCallStackHalts(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{{Op: ir.OpRet}}}
	state, err := Step(ir.NewInitialState(program))
	if err != nil {
		t.Fatal(err)
	}
	if state.IsRunning {
		t.Fatal("top-level RET must halt the machine")
	}
}

func TestStep_NeverMutatesInputState(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(1)},
		{Op: ir.OpLoadConst, Const: ir.IntValue(2)},
		{Op: ir.OpAdd},
	}}
	state := ir.NewInitialState(program)
	before := state.Clone()

	s1, err := Step(state)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Step(s1)
	if err != nil {
		t.Fatal(err)
	}

	if len(state.Heap) != len(before.Heap) || len(state.OperandStack) != len(before.OperandStack) {
		t.Fatal("Step mutated its input VMState")
	}
}
