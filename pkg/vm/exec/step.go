// Package exec implements the single-instruction state transition function
// at the heart of the ChronoVM: Step. Step is a pure function from one
// VMState to the next; it either advances the machine by exactly one
// instruction or returns a *vmerrors.VMError describing why it could not.
package exec

import (
	"fmt"

	"github.com/chronolab/chronovm/pkg/vm/environment"
	"github.com/chronolab/chronovm/pkg/vm/heap"
	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/vmerrors"
)

// Step advances state by one instruction. state is never mutated; every
// return path produces a fresh VMState.
func Step(state ir.VMState) (ir.VMState, error) {
	if state.PC < 0 || state.PC >= state.Program.Len() {
		return state, vmerrors.New(vmerrors.PCOutOfBounds,
			fmt.Sprintf("pc %d outside program of length %d", state.PC, state.Program.Len()),
			state.PC, state.StepCount, nil)
	}

	instr := state.Program.Instructions[state.PC]

	next, err := dispatch(state, instr)
	if err != nil {
		return state, err
	}
	next.StepCount = state.StepCount + 1
	return next, nil
}

func dispatch(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	switch instr.Op {
	case ir.OpLoadConst:
		return opLoadConst(state, instr)
	case ir.OpAdd:
		return opAdd(state, instr)
	case ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod:
		return opArith(state, instr)
	case ir.OpNegate:
		return opNegate(state, instr)
	case ir.OpNot:
		return opNot(state, instr)
	case ir.OpEq, ir.OpNeq:
		return opEquality(state, instr)
	case ir.OpLt, ir.OpGt, ir.OpLte, ir.OpGte:
		return opCompare(state, instr)
	case ir.OpStore:
		return opStore(state, instr)
	case ir.OpLoad:
		return opLoad(state, instr)
	case ir.OpJump:
		return opJump(state, instr)
	case ir.OpJumpIfFalse:
		return opJumpIf(state, instr, false)
	case ir.OpJumpIfTrue:
		return opJumpIf(state, instr, true)
	case ir.OpDup:
		return opDup(state, instr)
	case ir.OpPop:
		return opPop(state, instr)
	case ir.OpPrint:
		return opPrint(state, instr)
	case ir.OpMakeFunction:
		return opMakeFunction(state, instr)
	case ir.OpCall:
		return opCall(state, instr)
	case ir.OpRet:
		return opRet(state, instr)
	case ir.OpNewObject:
		return opNewObject(state, instr)
	case ir.OpSetProperty:
		return opSetProperty(state, instr)
	case ir.OpGetProperty:
		return opGetProperty(state, instr)
	case ir.OpBuildClass:
		return opBuildClass(state, instr)
	case ir.OpNewList:
		return opNewList(state, instr)
	case ir.OpListAppend:
		return opListAppend(state, instr)
	case ir.OpListGet:
		return opListGet(state, instr)
	case ir.OpListSet:
		return opListSet(state, instr)
	case ir.OpListLen:
		return opListLen(state, instr)
	case ir.OpHalt:
		return opHalt(state, instr)
	default:
		return state, vmerrors.New(vmerrors.InvalidOpcode,
			fmt.Sprintf("unknown opcode %q", instr.Op), state.PC, state.StepCount, &instr)
	}
}

// --- operand stack discipline -------------------------------------------

func pop(state ir.VMState, instr *ir.Instruction) (ir.VMState, ir.HeapAddress, error) {
	n := len(state.OperandStack)
	if n == 0 {
		return state, "", vmerrors.New(vmerrors.StackUnderflow, "operand stack is empty", state.PC, state.StepCount, instr)
	}
	addr := state.OperandStack[n-1]
	next := state
	stack := make([]ir.HeapAddress, n-1)
	copy(stack, state.OperandStack[:n-1])
	next.OperandStack = stack
	return next, addr, nil
}

func push(state ir.VMState, addr ir.HeapAddress) ir.VMState {
	next := state
	stack := make([]ir.HeapAddress, len(state.OperandStack)+1)
	copy(stack, state.OperandStack)
	stack[len(state.OperandStack)] = addr
	next.OperandStack = stack
	return next
}

func advance(state ir.VMState) ir.VMState {
	next := state
	next.PC = state.PC + 1
	return next
}

// --- literal / allocation opcodes ---------------------------------------

func opLoadConst(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, addr := heap.Alloc(state, instr.Const)
	next = push(next, addr)
	return advance(next), nil
}

// --- arithmetic -----------------------------------------------------------

func opAdd(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, r, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, l, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	lv, err := heap.Read(next, l)
	if err != nil {
		return state, err
	}
	rv, err := heap.Read(next, r)
	if err != nil {
		return state, err
	}

	var result ir.HeapValue
	switch {
	case lv.Kind == ir.KindString && rv.Kind == ir.KindString:
		result = ir.StringValue(lv.Str + rv.Str)
	case lv.Kind.IsNumeric() && rv.Kind.IsNumeric():
		result = numericBinary(lv, rv, func(a, b float64) float64 { return a + b }, func(a, b int64) int64 { return a + b })
	default:
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("ADD requires two numbers or two strings, got %s and %s", lv.Kind, rv.Kind),
			state.PC, state.StepCount, &instr)
	}

	next, addr := heap.Alloc(next, result)
	next = push(next, addr)
	return advance(next), nil
}

func opArith(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, r, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, l, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	lv, err := heap.Read(next, l)
	if err != nil {
		return state, err
	}
	rv, err := heap.Read(next, r)
	if err != nil {
		return state, err
	}

	if !lv.Kind.IsNumeric() || !rv.Kind.IsNumeric() {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("%s requires two numbers, got %s and %s", instr.Op, lv.Kind, rv.Kind),
			state.PC, state.StepCount, &instr)
	}

	if (instr.Op == ir.OpDiv || instr.Op == ir.OpMod) && isZero(rv) {
		return state, vmerrors.New(vmerrors.DivisionByZero,
			fmt.Sprintf("%s by zero", instr.Op), state.PC, state.StepCount, &instr)
	}

	var result ir.HeapValue
	switch instr.Op {
	case ir.OpSub:
		result = numericBinary(lv, rv, func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b })
	case ir.OpMul:
		result = numericBinary(lv, rv, func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b })
	case ir.OpDiv:
		result = numericBinary(lv, rv, func(a, b float64) float64 { return a / b }, func(a, b int64) int64 { return a / b })
	case ir.OpMod:
		result = numericBinary(lv, rv, mathMod, func(a, b int64) int64 { return a % b })
	}

	next, addr := heap.Alloc(next, result)
	next = push(next, addr)
	return advance(next), nil
}

func opNegate(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, x, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	xv, err := heap.Read(next, x)
	if err != nil {
		return state, err
	}
	if !xv.Kind.IsNumeric() {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("NEGATE requires a number, got %s", xv.Kind), state.PC, state.StepCount, &instr)
	}
	var result ir.HeapValue
	if xv.Kind == ir.KindFloat {
		result = ir.FloatValue(-xv.Float)
	} else {
		result = ir.IntValue(-xv.Int)
	}
	next, addr := heap.Alloc(next, result)
	next = push(next, addr)
	return advance(next), nil
}

func opNot(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, x, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	xv, err := heap.Read(next, x)
	if err != nil {
		return state, err
	}
	next, addr := heap.Alloc(next, ir.BoolValue(!xv.Truthy()))
	next = push(next, addr)
	return advance(next), nil
}

// --- equality / comparison ------------------------------------------------

func opEquality(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, r, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, l, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	lv, err := heap.Read(next, l)
	if err != nil {
		return state, err
	}
	rv, err := heap.Read(next, r)
	if err != nil {
		return state, err
	}

	eq := valuesEqual(l, r, lv, rv)
	if instr.Op == ir.OpNeq {
		eq = !eq
	}

	next, addr := heap.Alloc(next, ir.BoolValue(eq))
	next = push(next, addr)
	return advance(next), nil
}

// valuesEqual implements "identity of scalars, reference identity for heap
// objects": scalars compare by value, Function/Object/List compare by
// address (the two popped addresses, not structural content).
func valuesEqual(la, ra ir.HeapAddress, lv, rv ir.HeapValue) bool {
	if lv.Kind != rv.Kind {
		return false
	}
	switch lv.Kind {
	case ir.KindInt:
		return lv.Int == rv.Int
	case ir.KindFloat:
		return lv.Float == rv.Float
	case ir.KindBool:
		return lv.Bool == rv.Bool
	case ir.KindString:
		return lv.Str == rv.Str
	case ir.KindNull:
		return true
	default: // function, object, list: reference identity
		return la == ra
	}
}

func opCompare(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, r, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, l, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	lv, err := heap.Read(next, l)
	if err != nil {
		return state, err
	}
	rv, err := heap.Read(next, r)
	if err != nil {
		return state, err
	}
	if !lv.Kind.IsNumeric() || !rv.Kind.IsNumeric() {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("%s requires two numbers, got %s and %s", instr.Op, lv.Kind, rv.Kind),
			state.PC, state.StepCount, &instr)
	}

	lf, rf := numericFloat(lv), numericFloat(rv)
	var result bool
	switch instr.Op {
	case ir.OpLt:
		result = lf < rf
	case ir.OpGt:
		result = lf > rf
	case ir.OpLte:
		result = lf <= rf
	case ir.OpGte:
		result = lf >= rf
	}

	next, addr := heap.Alloc(next, ir.BoolValue(result))
	next = push(next, addr)
	return advance(next), nil
}

// --- bindings --------------------------------------------------------------

func opStore(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, x, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, err = environment.Bind(next, next.CurrentEnvironment, instr.Name, x)
	if err != nil {
		return state, err
	}
	return advance(next), nil
}

func opLoad(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	addr, err := environment.Lookup(state, state.CurrentEnvironment, instr.Name)
	if err != nil {
		return state, err
	}
	next := push(state, addr)
	return advance(next), nil
}

// --- control flow ------------------------------------------------------

func opJump(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next := state
	next.PC = instr.Target
	return next, nil
}

func opJumpIf(state ir.VMState, instr ir.Instruction, onTrue bool) (ir.VMState, error) {
	next, x, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	xv, err := heap.Read(next, x)
	if err != nil {
		return state, err
	}
	if xv.Truthy() == onTrue {
		next.PC = instr.Target
	} else {
		next.PC = state.PC + 1
	}
	return next, nil
}

func opDup(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	n := len(state.OperandStack)
	if n == 0 {
		return state, vmerrors.New(vmerrors.StackUnderflow, "DUP on empty stack", state.PC, state.StepCount, &instr)
	}
	next := push(state, state.OperandStack[n-1])
	return advance(next), nil
}

func opPop(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, _, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	return advance(next), nil
}

func opPrint(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, x, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	xv, err := heap.Read(next, x)
	if err != nil {
		return state, err
	}
	out := make([]string, len(next.Output)+1)
	copy(out, next.Output)
	out[len(next.Output)] = xv.Format()
	next.Output = out
	return advance(next), nil
}

// --- functions / calls ---------------------------------------------------

func opMakeFunction(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	fn := ir.FunctionVal(ir.FunctionValue{Entry: instr.Target, Environment: state.CurrentEnvironment})
	next, addr := heap.Alloc(state, fn)
	next = push(next, addr)
	return advance(next), nil
}

func opCall(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, calleeAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}

	collected := make([]ir.HeapAddress, instr.ArgCount)
	for i := 0; i < instr.ArgCount; i++ {
		var a ir.HeapAddress
		next, a, err = pop(next, &instr)
		if err != nil {
			return state, err
		}
		// Popping order yields args in reverse of source order.
		collected[instr.ArgCount-1-i] = a
	}

	calleeVal, err := heap.Read(next, calleeAddr)
	if err != nil {
		return state, err
	}
	if calleeVal.Kind != ir.KindFunction {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("CALL target is not a function (got %s)", calleeVal.Kind),
			state.PC, state.StepCount, &instr)
	}

	callerEnv := next.CurrentEnvironment
	parent := calleeVal.Fn.Environment
	next, newEnv := environment.Create(next, &parent)
	for i, argAddr := range collected {
		next, err = environment.Bind(next, newEnv, fmt.Sprintf("arg%d", i), argAddr)
		if err != nil {
			return state, err
		}
	}

	frame := ir.StackFrame{ReturnAddress: state.PC + 1, Environment: callerEnv}
	callStack := make([]ir.StackFrame, len(next.CallStack)+1)
	copy(callStack, next.CallStack)
	callStack[len(next.CallStack)] = frame
	next.CallStack = callStack

	next.CurrentEnvironment = newEnv
	next.PC = calleeVal.Fn.Entry
	return next, nil
}

func opRet(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	if len(state.CallStack) == 0 {
		next := state
		next.IsRunning = false
		next.PC = state.PC + 1
		return next, nil
	}

	n := len(state.CallStack)
	frame := state.CallStack[n-1]
	next := state
	callStack := make([]ir.StackFrame, n-1)
	copy(callStack, state.CallStack[:n-1])
	next.CallStack = callStack
	next.PC = frame.ReturnAddress
	next.CurrentEnvironment = frame.Environment
	return next, nil
}

// --- objects ---------------------------------------------------------------

func opNewObject(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, addr := heap.Alloc(state, ir.ObjectVal(ir.NewObjectValue()))
	next = push(next, addr)
	return advance(next), nil
}

func opSetProperty(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, valAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, objAddr, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	objVal, err := heap.Read(next, objAddr)
	if err != nil {
		return state, err
	}
	if objVal.Kind != ir.KindObject {
		return state, vmerrors.New(vmerrors.InvalidObjectAccess,
			fmt.Sprintf("SET_PROPERTY target is not an object (got %s)", objVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	updated := ir.ObjectVal(objVal.Object.WithProperty(instr.Name, valAddr))
	next = heap.Replace(next, objAddr, updated)
	return advance(next), nil
}

func opGetProperty(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, objAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	objVal, err := heap.Read(next, objAddr)
	if err != nil {
		return state, err
	}
	if objVal.Kind != ir.KindObject {
		return state, vmerrors.New(vmerrors.InvalidObjectAccess,
			fmt.Sprintf("GET_PROPERTY target is not an object (got %s)", objVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	addr, ok := objVal.Object.Values[instr.Name]
	if !ok {
		return state, vmerrors.New(vmerrors.PropertyNotFound,
			fmt.Sprintf("property %q not found", instr.Name), state.PC, state.StepCount, &instr)
	}
	next = push(next, addr)
	return advance(next), nil
}

func opBuildClass(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, fnAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, err = environment.Bind(next, next.CurrentEnvironment, instr.Name, fnAddr)
	if err != nil {
		return state, err
	}
	return advance(next), nil
}

// --- lists -------------------------------------------------------------

func opNewList(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, addr := heap.Alloc(state, ir.ListVal(ir.NewListValue()))
	next = push(next, addr)
	return advance(next), nil
}

func opListAppend(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, valAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, listAddr, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	listVal, err := heap.Read(next, listAddr)
	if err != nil {
		return state, err
	}
	if listVal.Kind != ir.KindList {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("LIST_APPEND target is not a list (got %s)", listVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	updated := ir.ListVal(listVal.List.WithAppend(valAddr))
	next = heap.Replace(next, listAddr, updated)
	next = push(next, listAddr)
	return advance(next), nil
}

func opListGet(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, idxAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, listAddr, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	listVal, err := heap.Read(next, listAddr)
	if err != nil {
		return state, err
	}
	if listVal.Kind != ir.KindList {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("LIST_GET target is not a list (got %s)", listVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	idxVal, err := heap.Read(next, idxAddr)
	if err != nil {
		return state, err
	}
	if idxVal.Kind != ir.KindInt {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("LIST_GET index is not an integer (got %s)", idxVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	idx := int(idxVal.Int)
	if idx < 0 || idx >= len(listVal.List.Elements) {
		return state, vmerrors.New(vmerrors.HeapAccessViolation,
			fmt.Sprintf("list index %d out of bounds (len %d)", idx, len(listVal.List.Elements)),
			state.PC, state.StepCount, &instr)
	}
	next = push(next, listVal.List.Elements[idx])
	return advance(next), nil
}

func opListSet(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, valAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	next, idxAddr, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	next, listAddr, err := pop(next, &instr)
	if err != nil {
		return state, err
	}
	listVal, err := heap.Read(next, listAddr)
	if err != nil {
		return state, err
	}
	if listVal.Kind != ir.KindList {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("LIST_SET target is not a list (got %s)", listVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	idxVal, err := heap.Read(next, idxAddr)
	if err != nil {
		return state, err
	}
	if idxVal.Kind != ir.KindInt {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("LIST_SET index is not an integer (got %s)", idxVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	idx := int(idxVal.Int)
	if idx < 0 || idx >= len(listVal.List.Elements) {
		return state, vmerrors.New(vmerrors.HeapAccessViolation,
			fmt.Sprintf("list index %d out of bounds (len %d)", idx, len(listVal.List.Elements)),
			state.PC, state.StepCount, &instr)
	}
	updated := ir.ListVal(listVal.List.WithSet(idx, valAddr))
	next = heap.Replace(next, listAddr, updated)
	return advance(next), nil
}

func opListLen(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next, listAddr, err := pop(state, &instr)
	if err != nil {
		return state, err
	}
	listVal, err := heap.Read(next, listAddr)
	if err != nil {
		return state, err
	}
	if listVal.Kind != ir.KindList {
		return state, vmerrors.New(vmerrors.TypeError,
			fmt.Sprintf("LIST_LEN target is not a list (got %s)", listVal.Kind),
			state.PC, state.StepCount, &instr)
	}
	next, addr := heap.Alloc(next, ir.IntValue(int64(len(listVal.List.Elements))))
	next = push(next, addr)
	return advance(next), nil
}

// --- halt -------------------------------------------------------------

func opHalt(state ir.VMState, instr ir.Instruction) (ir.VMState, error) {
	next := advance(state)
	next.IsRunning = false
	return next, nil
}

// --- numeric helpers -----------------------------------------------------

func isZero(v ir.HeapValue) bool {
	if v.Kind == ir.KindFloat {
		return v.Float == 0
	}
	return v.Int == 0
}

func numericFloat(v ir.HeapValue) float64 {
	if v.Kind == ir.KindFloat {
		return v.Float
	}
	return float64(v.Int)
}

func mathMod(a, b float64) float64 {
	m := a - float64(int64(a/b))*b
	return m
}

// numericBinary applies floatOp when either operand is a float (promoting
// the result to float), otherwise applies intOp and keeps an integer result.
func numericBinary(l, r ir.HeapValue, floatOp func(a, b float64) float64, intOp func(a, b int64) int64) ir.HeapValue {
	if l.Kind == ir.KindFloat || r.Kind == ir.KindFloat {
		return ir.FloatValue(floatOp(numericFloat(l), numericFloat(r)))
	}
	return ir.IntValue(intOp(l.Int, r.Int))
}
