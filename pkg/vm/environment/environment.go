// Package environment implements the lexical-scope chain described by the
// governing specification's environment component: creation, binding and
// child-to-parent lookup, with a counter independent from the heap's so
// traces stay legible (env@N addresses never collide with heap@N ones).
package environment

import (
	"fmt"

	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/vmerrors"
)

// Create allocates a new environment with the given optional parent and
// returns the updated state alongside the new environment's address.
func Create(state ir.VMState, parent *ir.EnvironmentAddress) (ir.VMState, ir.EnvironmentAddress) {
	addr := ir.EnvironmentAddress(fmt.Sprintf("env@%d", state.EnvCounter))

	var parentCopy *ir.EnvironmentAddress
	if parent != nil {
		p := *parent
		parentCopy = &p
	}

	envs := make(map[ir.EnvironmentAddress]ir.EnvironmentRecord, len(state.EnvironmentRecords)+1)
	for k, v := range state.EnvironmentRecords {
		envs[k] = v
	}
	envs[addr] = ir.EnvironmentRecord{
		Address:  addr,
		Parent:   parentCopy,
		Bindings: map[string]ir.HeapAddress{},
	}

	next := state
	next.EnvironmentRecords = envs
	next.EnvCounter++
	return next, addr
}

// Bind replaces or inserts the name -> heapAddr binding in envAddr's own
// record (it never touches ancestor scopes).
func Bind(state ir.VMState, envAddr ir.EnvironmentAddress, name string, heapAddr ir.HeapAddress) (ir.VMState, error) {
	rec, ok := state.EnvironmentRecords[envAddr]
	if !ok {
		return state, vmerrors.New(
			vmerrors.HeapAccessViolation,
			fmt.Sprintf("no environment at %s", envAddr),
			state.PC, state.StepCount, nil,
		)
	}

	bindings := make(map[string]ir.HeapAddress, len(rec.Bindings)+1)
	for k, v := range rec.Bindings {
		bindings[k] = v
	}
	bindings[name] = heapAddr
	rec.Bindings = bindings

	envs := make(map[ir.EnvironmentAddress]ir.EnvironmentRecord, len(state.EnvironmentRecords))
	for k, v := range state.EnvironmentRecords {
		envs[k] = v
	}
	envs[envAddr] = rec

	next := state
	next.EnvironmentRecords = envs
	return next, nil
}

// Lookup walks from envAddr up the parent chain and returns the innermost
// binding for name, or UNBOUND_VARIABLE if no scope in the chain binds it.
func Lookup(state ir.VMState, envAddr ir.EnvironmentAddress, name string) (ir.HeapAddress, error) {
	cur := envAddr
	for {
		rec, ok := state.EnvironmentRecords[cur]
		if !ok {
			break
		}
		if addr, bound := rec.Bindings[name]; bound {
			return addr, nil
		}
		if rec.Parent == nil {
			break
		}
		cur = *rec.Parent
	}
	return "", vmerrors.New(
		vmerrors.UnboundVariable,
		fmt.Sprintf("unbound variable %q", name),
		state.PC, state.StepCount, nil,
	)
}
