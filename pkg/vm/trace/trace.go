// Package trace records the append-only history of a ChronoVM run: one
// Snapshot taken before each instruction executes, plus a final snapshot
// captured once the run halts. Traces are sealed before being handed back to
// a caller so that no further append can occur against a returned value.
package trace

import "github.com/chronolab/chronovm/pkg/vm/ir"

// Snapshot is a deep, immutable copy of a VMState at one point in a run.
type Snapshot struct {
	State ir.VMState
	Index int
}

// Trace is the append-only ordered sequence of snapshots belonging to a
// single run. Once Seal has been called, Append must not be used again.
type Trace struct {
	snapshots []Snapshot
	sealed    bool
}

// New returns an empty, unsealed trace.
func New() Trace {
	return Trace{}
}

// Append returns a new Trace with state's deep copy recorded as the next
// snapshot. It panics if called on an already-sealed trace: sealing a trace
// and then extending it would silently violate the append-only contract.
func (t Trace) Append(state ir.VMState) Trace {
	if t.sealed {
		panic("trace: append on a sealed trace")
	}
	snaps := make([]Snapshot, len(t.snapshots)+1)
	copy(snaps, t.snapshots)
	snaps[len(t.snapshots)] = Snapshot{State: state.Clone(), Index: len(t.snapshots)}
	return Trace{snapshots: snaps}
}

// Seal freezes the trace: the returned value's Snapshots are safe to hand to
// callers outside this package without risking further mutation.
func (t Trace) Seal() Trace {
	snaps := make([]Snapshot, len(t.snapshots))
	copy(snaps, t.snapshots)
	return Trace{snapshots: snaps, sealed: true}
}

// Sealed reports whether Seal has been called on this trace.
func (t Trace) Sealed() bool { return t.sealed }

// Snapshots returns the trace's snapshots in capture order. The returned
// slice is a defensive copy; mutating it never affects t.
func (t Trace) Snapshots() []Snapshot {
	out := make([]Snapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// Len returns the number of recorded snapshots.
func (t Trace) Len() int { return len(t.snapshots) }

// At returns the snapshot at index, and whether one exists there.
func (t Trace) At(index int) (Snapshot, bool) {
	if index < 0 || index >= len(t.snapshots) {
		return Snapshot{}, false
	}
	return t.snapshots[index], true
}
