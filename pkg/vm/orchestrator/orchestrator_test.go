package orchestrator

import (
	"testing"

	"github.com/chronolab/chronovm/pkg/vm/ir"
)

func simpleProgram() ir.Program {
	return ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(2)},
		{Op: ir.OpLoadConst, Const: ir.IntValue(3)},
		{Op: ir.OpAdd},
		{Op: ir.OpHalt},
	}}
}

func TestRun_SnapshotsBeforeEachInstructionPlusFinal(t *testing.T) {
	result := Run(simpleProgram(), Options{})
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if result.Trace.Len() != len(simpleProgram().Instructions)+1 {
		t.Fatalf("expected %d snapshots, got %d", len(simpleProgram().Instructions)+1, result.Trace.Len())
	}
	if !result.Trace.Sealed() {
		t.Fatal("Run must return a sealed trace")
	}
}

func TestRun_StopsAtMaxSteps(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpJump, Target: 0},
	}}
	result := Run(program, Options{MaxSteps: 5})
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if result.FinalState.StepCount != 5 {
		t.Fatalf("expected exactly 5 steps, got %d", result.FinalState.StepCount)
	}
}

func TestRun_DeterministicAcrossRepeatedRuns(t *testing.T) {
	r1 := Run(simpleProgram(), Options{})
	r2 := Run(simpleProgram(), Options{})
	if r1.Trace.Len() != r2.Trace.Len() {
		t.Fatal("identical programs must produce traces of identical length")
	}
	if r1.FinalState.StepCount != r2.FinalState.StepCount {
		t.Fatal("identical programs must take an identical number of steps")
	}
}

func TestRun_GCAppliesOnlyToFinalState(t *testing.T) {
	program := ir.Program{Instructions: []ir.Instruction{
		{Op: ir.OpLoadConst, Const: ir.IntValue(1)},
		{Op: ir.OpPop},
		{Op: ir.OpHalt},
	}}
	result := Run(program, Options{GC: true})
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if len(result.FinalState.Heap) != 0 {
		t.Fatalf("GC should have reclaimed the popped, now-unreachable value, heap has %d entries", len(result.FinalState.Heap))
	}
	last, ok := result.Trace.At(result.Trace.Len() - 1)
	if !ok || len(last.State.Heap) != 1 {
		t.Fatal("GC must not alter the recorded trace: its final snapshot should still hold the popped value")
	}
}

func TestStepper_MatchesRunForSameProgram(t *testing.T) {
	s := NewStepper(simpleProgram())
	for s.IsRunning() {
		if err := s.StepOnce(); err != nil {
			t.Fatal(err)
		}
	}
	tr := s.Finalize()

	result := Run(simpleProgram(), Options{})
	if tr.Len() != result.Trace.Len() {
		t.Fatalf("stepper trace length %d != run trace length %d", tr.Len(), result.Trace.Len())
	}
}
