// Package panel defines the fixed panel and view-mode vocabulary shared by
// every governance component: the seven lesson-authoring panels, their two
// view modes, and the canonical iteration order used wherever a full
// PanelModeMap must be produced deterministically.
package panel

// Id identifies one of the seven fixed UI panels. The set is closed; no
// component may introduce a new PanelId at runtime.
type Id string

const (
	Memory       Id = "memory"
	ControlFlow  Id = "controlFlow"
	Variables    Id = "variables"
	Stack        Id = "stack"
	Instructions Id = "instructions"
	Narration    Id = "narration"
	Output       Id = "output"
)

// ViewMode is the depth at which a panel renders.
type ViewMode string

const (
	Learning ViewMode = "learning"
	Pro      ViewMode = "pro"
)

// CanonicalOrder is the fixed iteration order every governance function uses
// when walking panels, so that resolution, delta computation and audit
// entries are reproducible across runs.
var CanonicalOrder = []Id{Memory, ControlFlow, Variables, Stack, Instructions, Narration, Output}

// DefaultModes is the baseline every project template starts from: every
// panel defaults to the learning view until a template or override says
// otherwise.
var DefaultModes = ModeMap{
	Memory:       Learning,
	ControlFlow:  Learning,
	Variables:    Learning,
	Stack:        Learning,
	Instructions: Learning,
	Narration:    Learning,
	Output:       Learning,
}

// ModeMap is a complete mapping from every PanelId to a ViewMode.
type ModeMap map[Id]ViewMode

// Clone returns an independent copy of m.
func (m ModeMap) Clone() ModeMap {
	next := make(ModeMap, len(m))
	for k, v := range m {
		next[k] = v
	}
	return next
}

// IsValidId reports whether id is one of the seven fixed panels.
func IsValidId(id Id) bool {
	for _, p := range CanonicalOrder {
		if p == id {
			return true
		}
	}
	return false
}

// IsValidViewMode reports whether mode is a recognised ViewMode.
func IsValidViewMode(mode ViewMode) bool {
	return mode == Learning || mode == Pro
}
