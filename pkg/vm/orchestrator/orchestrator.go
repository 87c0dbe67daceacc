// Package orchestrator drives the ChronoVM step function to completion (or
// to a step budget), recording a sealed trace, and offers a single-step
// Stepper for UI-driven execution.
package orchestrator

import (
	"github.com/chronolab/chronovm/pkg/vm/exec"
	"github.com/chronolab/chronovm/pkg/vm/gc"
	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/trace"
)

// DefaultMaxSteps is the run loop's step budget when Options.MaxSteps is
// left at zero.
const DefaultMaxSteps = 10_000

// Options configures a single run.
type Options struct {
	// MaxSteps bounds the run loop; zero selects DefaultMaxSteps.
	MaxSteps int64
	// GC applies the reachability collector to the final returned state
	// only; it never alters the recorded trace.
	GC bool
}

// Result is the outcome of a completed run.
type Result struct {
	FinalState ir.VMState
	Trace      trace.Trace
	Err        error
}

// Run executes program from its initial state until it halts, hits
// options.MaxSteps, or a step returns an error. It snapshots the state
// before every instruction and appends one final snapshot once the loop
// ends, then seals the trace.
func Run(program ir.Program, options Options) Result {
	maxSteps := options.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	state := ir.NewInitialState(program)
	tr := trace.New()

	var runErr error
	for state.IsRunning && state.StepCount < maxSteps {
		tr = tr.Append(state)
		next, err := exec.Step(state)
		if err != nil {
			runErr = err
			break
		}
		state = next
	}
	tr = tr.Append(state)
	tr = tr.Seal()

	final := state
	if options.GC && runErr == nil {
		final = gc.Collect(final)
	}

	return Result{FinalState: final, Trace: tr, Err: runErr}
}

// Stepper offers UI-driven single-stepping over a program: one instruction
// executes per call to StepOnce, with the same before-instruction
// snapshotting contract as Run.
type Stepper struct {
	state ir.VMState
	tr    trace.Trace
	done  bool
}

// NewStepper returns a Stepper positioned at program's initial state with an
// empty, unsealed trace.
func NewStepper(program ir.Program) *Stepper {
	return &Stepper{state: ir.NewInitialState(program)}
}

// State returns the stepper's current VMState.
func (s *Stepper) State() ir.VMState { return s.state }

// Trace returns the trace recorded so far. Before Finalize is called the
// returned trace is unsealed.
func (s *Stepper) Trace() trace.Trace { return s.tr }

// IsRunning reports whether the underlying state is still executing.
func (s *Stepper) IsRunning() bool { return s.state.IsRunning && !s.done }

// StepOnce snapshots the current state, executes one instruction, and
// advances the stepper's state. It returns a step's error once; after that,
// and once the stepper is finalized or the state has stopped running, it is
// a no-op that returns nil.
func (s *Stepper) StepOnce() error {
	if s.done || !s.state.IsRunning {
		return nil
	}
	s.tr = s.tr.Append(s.state)
	next, err := exec.Step(s.state)
	if err != nil {
		s.done = true
		return err
	}
	s.state = next
	return nil
}

// Finalize appends the closing snapshot and seals the trace, returning the
// sealed trace. Calling StepOnce after Finalize has no effect.
func (s *Stepper) Finalize() trace.Trace {
	if !s.tr.Sealed() {
		s.tr = s.tr.Append(s.state)
		s.tr = s.tr.Seal()
	}
	s.done = true
	return s.tr
}
