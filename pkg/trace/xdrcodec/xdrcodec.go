// Package xdrcodec encodes a VM trace as compact XDR binary, an
// alternative to JSON for archival and transfer. XDR has no native map
// type, so every map-shaped field is flattened into a slice of key/value
// pairs before encoding and can be rebuilt into a map on decode. Heap,
// environment records and bindings are sorted by key; object properties
// keep their insertion order.
package xdrcodec

import (
	"bytes"
	"fmt"
	"sort"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/chronolab/chronovm/pkg/vm/ir"
	"github.com/chronolab/chronovm/pkg/vm/trace"
)

// wireProperty is one flattened object key/value pair.
type wireProperty struct {
	Key     string
	Address string
}

// wireHeapEntry is one flattened (address, value) pair from VMState.Heap.
type wireHeapEntry struct {
	Address    string
	Kind       int32
	IntVal     int64
	FloatVal   float64
	BoolVal    bool
	StrVal     string
	FnEntry    int32
	FnEnv      string
	ObjectKeys []wireProperty
	ListElems  []string
}

// wireBinding is one flattened (name, address) pair from an environment's Bindings.
type wireBinding struct {
	Name    string
	Address string
}

// wireEnv is one flattened environment record.
type wireEnv struct {
	Address   string
	HasParent bool
	Parent    string
	Bindings  []wireBinding
}

// wireFrame mirrors ir.StackFrame.
type wireFrame struct {
	ReturnAddress int32
	Environment   string
}

// wireState is the XDR wire shape of ir.VMState: every map is flattened to
// a slice sorted by key so encoding is deterministic across runs.
type wireState struct {
	PC                 int32
	OperandStack       []string
	Heap               []wireHeapEntry
	Environments       []wireEnv
	CurrentEnvironment string
	GlobalEnvironment  string
	AllocationCounter  int64
	EnvCounter         int64
	StepCount          int64
	IsRunning          bool
	CallStack          []wireFrame
	Output             []string
}

// wireSnapshot mirrors trace.Snapshot.
type wireSnapshot struct {
	Index int32
	State wireState
}

// wireTrace is the top-level encoded payload.
type wireTrace struct {
	Snapshots []wireSnapshot
}

func toWireHeapEntry(addr string, v ir.HeapValue) wireHeapEntry {
	entry := wireHeapEntry{Address: addr, Kind: int32(v.Kind)}
	switch v.Kind {
	case ir.KindInt:
		entry.IntVal = v.Int
	case ir.KindFloat:
		entry.FloatVal = v.Float
	case ir.KindBool:
		entry.BoolVal = v.Bool
	case ir.KindString:
		entry.StrVal = v.Str
	case ir.KindFunction:
		entry.FnEntry = int32(v.Fn.Entry)
		entry.FnEnv = string(v.Fn.Environment)
	case ir.KindObject:
		props := make([]wireProperty, len(v.Object.Keys))
		for i, k := range v.Object.Keys {
			props[i] = wireProperty{Key: k, Address: string(v.Object.Values[k])}
		}
		entry.ObjectKeys = props
	case ir.KindList:
		elems := make([]string, len(v.List.Elements))
		for i, a := range v.List.Elements {
			elems[i] = string(a)
		}
		entry.ListElems = elems
	}
	return entry
}

func toWireState(s ir.VMState) wireState {
	heapKeys := make([]string, 0, len(s.Heap))
	for k := range s.Heap {
		heapKeys = append(heapKeys, string(k))
	}
	sort.Strings(heapKeys)

	heap := make([]wireHeapEntry, 0, len(heapKeys))
	for _, k := range heapKeys {
		heap = append(heap, toWireHeapEntry(k, s.Heap[ir.HeapAddress(k)]))
	}

	envKeys := make([]string, 0, len(s.EnvironmentRecords))
	for k := range s.EnvironmentRecords {
		envKeys = append(envKeys, string(k))
	}
	sort.Strings(envKeys)

	envs := make([]wireEnv, 0, len(envKeys))
	for _, k := range envKeys {
		rec := s.EnvironmentRecords[ir.EnvironmentAddress(k)]
		names := make([]string, 0, len(rec.Bindings))
		for n := range rec.Bindings {
			names = append(names, n)
		}
		sort.Strings(names)
		bindings := make([]wireBinding, 0, len(names))
		for _, n := range names {
			bindings = append(bindings, wireBinding{Name: n, Address: string(rec.Bindings[n])})
		}
		we := wireEnv{Address: k, Bindings: bindings}
		if rec.Parent != nil {
			we.HasParent = true
			we.Parent = string(*rec.Parent)
		}
		envs = append(envs, we)
	}

	operands := make([]string, len(s.OperandStack))
	for i, a := range s.OperandStack {
		operands[i] = string(a)
	}

	frames := make([]wireFrame, len(s.CallStack))
	for i, f := range s.CallStack {
		frames[i] = wireFrame{ReturnAddress: int32(f.ReturnAddress), Environment: string(f.Environment)}
	}

	output := make([]string, len(s.Output))
	copy(output, s.Output)

	return wireState{
		PC:                 int32(s.PC),
		OperandStack:       operands,
		Heap:               heap,
		Environments:       envs,
		CurrentEnvironment: string(s.CurrentEnvironment),
		GlobalEnvironment:  string(s.GlobalEnvironment),
		AllocationCounter:  s.AllocationCounter,
		EnvCounter:         s.EnvCounter,
		StepCount:          s.StepCount,
		IsRunning:          s.IsRunning,
		CallStack:          frames,
		Output:             output,
	}
}

func fromWireHeapEntry(e wireHeapEntry) (ir.HeapAddress, ir.HeapValue) {
	kind := ir.ValueKind(e.Kind)
	switch kind {
	case ir.KindInt:
		return ir.HeapAddress(e.Address), ir.IntValue(e.IntVal)
	case ir.KindFloat:
		return ir.HeapAddress(e.Address), ir.FloatValue(e.FloatVal)
	case ir.KindBool:
		return ir.HeapAddress(e.Address), ir.BoolValue(e.BoolVal)
	case ir.KindString:
		return ir.HeapAddress(e.Address), ir.StringValue(e.StrVal)
	case ir.KindFunction:
		return ir.HeapAddress(e.Address), ir.FunctionVal(ir.FunctionValue{Entry: int(e.FnEntry), Environment: ir.EnvironmentAddress(e.FnEnv)})
	case ir.KindObject:
		obj := ir.NewObjectValue()
		for _, p := range e.ObjectKeys {
			obj = obj.WithProperty(p.Key, ir.HeapAddress(p.Address))
		}
		return ir.HeapAddress(e.Address), ir.ObjectVal(obj)
	case ir.KindList:
		list := ir.NewListValue()
		for _, a := range e.ListElems {
			list = list.WithAppend(ir.HeapAddress(a))
		}
		return ir.HeapAddress(e.Address), ir.ListVal(list)
	default:
		return ir.HeapAddress(e.Address), ir.NullValue()
	}
}

func fromWireState(w wireState) ir.VMState {
	heap := make(map[ir.HeapAddress]ir.HeapValue, len(w.Heap))
	for _, e := range w.Heap {
		addr, v := fromWireHeapEntry(e)
		heap[addr] = v
	}

	envs := make(map[ir.EnvironmentAddress]ir.EnvironmentRecord, len(w.Environments))
	for _, we := range w.Environments {
		bindings := make(map[string]ir.HeapAddress, len(we.Bindings))
		for _, b := range we.Bindings {
			bindings[b.Name] = ir.HeapAddress(b.Address)
		}
		rec := ir.EnvironmentRecord{Address: ir.EnvironmentAddress(we.Address), Bindings: bindings}
		if we.HasParent {
			p := ir.EnvironmentAddress(we.Parent)
			rec.Parent = &p
		}
		envs[rec.Address] = rec
	}

	operands := make([]ir.HeapAddress, len(w.OperandStack))
	for i, a := range w.OperandStack {
		operands[i] = ir.HeapAddress(a)
	}

	frames := make([]ir.StackFrame, len(w.CallStack))
	for i, f := range w.CallStack {
		frames[i] = ir.StackFrame{ReturnAddress: int(f.ReturnAddress), Environment: ir.EnvironmentAddress(f.Environment)}
	}

	output := make([]string, len(w.Output))
	copy(output, w.Output)

	return ir.VMState{
		PC:                 int(w.PC),
		OperandStack:       operands,
		Heap:               heap,
		EnvironmentRecords: envs,
		CurrentEnvironment: ir.EnvironmentAddress(w.CurrentEnvironment),
		GlobalEnvironment:  ir.EnvironmentAddress(w.GlobalEnvironment),
		AllocationCounter:  w.AllocationCounter,
		EnvCounter:         w.EnvCounter,
		StepCount:          w.StepCount,
		IsRunning:          w.IsRunning,
		CallStack:          frames,
		Output:             output,
	}
}

// Encode serialises t as XDR binary.
func Encode(t trace.Trace) ([]byte, error) {
	snaps := t.Snapshots()
	wt := wireTrace{Snapshots: make([]wireSnapshot, len(snaps))}
	for i, snap := range snaps {
		wt.Snapshots[i] = wireSnapshot{Index: int32(snap.Index), State: toWireState(snap.State)}
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, wt); err != nil {
		return nil, fmt.Errorf("xdrcodec: marshaling trace: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reconstructs a sealed trace.Trace from bytes previously produced by Encode.
func Decode(data []byte) (trace.Trace, error) {
	var wt wireTrace
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &wt); err != nil {
		return trace.Trace{}, fmt.Errorf("xdrcodec: unmarshaling trace: %w", err)
	}

	t := trace.New()
	for _, ws := range wt.Snapshots {
		t = t.Append(fromWireState(ws.State))
	}
	return t.Seal(), nil
}
