package ir

// EnvironmentRecord is a single lexical scope: a set of name bindings plus
// an optional link to its parent scope. Bindings in one record never shadow
// each other; shadowing only happens by walking the parent chain.
type EnvironmentRecord struct {
	Address  EnvironmentAddress
	Parent   *EnvironmentAddress
	Bindings map[string]HeapAddress
}

// Clone deep-copies the bindings map and parent pointer.
func (e EnvironmentRecord) Clone() EnvironmentRecord {
	bindings := make(map[string]HeapAddress, len(e.Bindings))
	for k, v := range e.Bindings {
		bindings[k] = v
	}
	var parent *EnvironmentAddress
	if e.Parent != nil {
		p := *e.Parent
		parent = &p
	}
	return EnvironmentRecord{Address: e.Address, Parent: parent, Bindings: bindings}
}

// StackFrame is a single call-stack entry: where to resume the caller and
// which environment to restore as current.
type StackFrame struct {
	ReturnAddress int
	Environment   EnvironmentAddress
}

// VMState is the complete, serialisable ChronoVM machine state. Every field
// is logically read-only: callers must treat a VMState as a value and never
// mutate its maps or slices in place. All exported transformations in
// pkg/vm/heap, pkg/vm/environment, pkg/vm/exec and pkg/vm/gc return a fresh
// VMState rather than editing their argument.
type VMState struct {
	Program Program
	PC      int

	OperandStack []HeapAddress

	Heap               map[HeapAddress]HeapValue
	EnvironmentRecords map[EnvironmentAddress]EnvironmentRecord

	CurrentEnvironment EnvironmentAddress
	GlobalEnvironment  EnvironmentAddress

	AllocationCounter int64
	EnvCounter        int64
	StepCount         int64

	IsRunning bool

	CallStack []StackFrame
	Output    []string
}

const (
	initialGlobalEnv EnvironmentAddress = "env@0"
)

// NewInitialState builds the pure-function-of-program initial state: one
// global environment env@0 (also current), envCounter=1, allocationCounter=0.
func NewInitialState(program Program) VMState {
	return VMState{
		Program:      program,
		PC:           0,
		OperandStack: nil,
		Heap:         map[HeapAddress]HeapValue{},
		EnvironmentRecords: map[EnvironmentAddress]EnvironmentRecord{
			initialGlobalEnv: {
				Address:  initialGlobalEnv,
				Parent:   nil,
				Bindings: map[string]HeapAddress{},
			},
		},
		CurrentEnvironment: initialGlobalEnv,
		GlobalEnvironment:  initialGlobalEnv,
		AllocationCounter:  0,
		EnvCounter:         1,
		StepCount:          0,
		IsRunning:          true,
		CallStack:          nil,
		Output:             nil,
	}
}

// Clone returns a fully independent deep copy of the state, suitable for use
// as a Snapshot: mutating the result never affects s and vice versa.
func (s VMState) Clone() VMState {
	next := s
	next.OperandStack = cloneAddrSlice(s.OperandStack)

	heap := make(map[HeapAddress]HeapValue, len(s.Heap))
	for k, v := range s.Heap {
		heap[k] = v.Clone()
	}
	next.Heap = heap

	envs := make(map[EnvironmentAddress]EnvironmentRecord, len(s.EnvironmentRecords))
	for k, v := range s.EnvironmentRecords {
		envs[k] = v.Clone()
	}
	next.EnvironmentRecords = envs

	next.CallStack = make([]StackFrame, len(s.CallStack))
	copy(next.CallStack, s.CallStack)

	next.Output = make([]string, len(s.Output))
	copy(next.Output, s.Output)

	return next
}

func cloneAddrSlice(s []HeapAddress) []HeapAddress {
	out := make([]HeapAddress, len(s))
	copy(out, s)
	return out
}
