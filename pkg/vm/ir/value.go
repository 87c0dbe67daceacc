// Package ir defines the instruction set and machine state for the ChronoVM
// stack interpreter. Every type here is a plain value: no method mutates its
// receiver's backing storage in place without first copying it, so that
// pkg/vm/heap, pkg/vm/environment, and pkg/vm/exec can treat VMState as an
// immutable value threaded through a chain of pure transformations.
package ir

// HeapAddress is an opaque, monotonically-allocated reference into a heap.
// Addresses are never reused and compared only by value equality.
type HeapAddress string

// EnvironmentAddress is the analogous opaque reference for scope records.
// It is a distinct type from HeapAddress so the two address spaces can never
// be confused at compile time, matching the counters being independent.
type EnvironmentAddress string

// ValueKind discriminates the tagged union stored at a HeapAddress.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindBool
	KindString
	KindNull
	KindFunction
	KindObject
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindNull:
		return "null"
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the kind participates in arithmetic/comparison.
func (k ValueKind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// FunctionValue is a closure: the code offset to jump to plus the address of
// the environment that was active when the function was created.
type FunctionValue struct {
	Entry       int
	Environment EnvironmentAddress
}

// Clone returns a value-identical copy; FunctionValue has no mutable
// sub-structure so this is a plain copy.
func (f FunctionValue) Clone() FunctionValue { return f }

// ObjectValue is an insertion-ordered string-keyed mapping to heap addresses.
// Order is the order keys were first assigned; SET_PROPERTY on an existing
// key updates the value in place without moving the key.
type ObjectValue struct {
	Keys   []string
	Values map[string]HeapAddress
}

// NewObjectValue returns an empty object.
func NewObjectValue() ObjectValue {
	return ObjectValue{Values: map[string]HeapAddress{}}
}

// Clone deep-copies the key order slice and value map.
func (o ObjectValue) Clone() ObjectValue {
	keys := make([]string, len(o.Keys))
	copy(keys, o.Keys)
	values := make(map[string]HeapAddress, len(o.Values))
	for k, v := range o.Values {
		values[k] = v
	}
	return ObjectValue{Keys: keys, Values: values}
}

// WithProperty returns a new ObjectValue with name bound to addr, preserving
// insertion order: an existing key is updated in place, a new key is
// appended.
func (o ObjectValue) WithProperty(name string, addr HeapAddress) ObjectValue {
	next := o.Clone()
	if _, exists := next.Values[name]; !exists {
		next.Keys = append(next.Keys, name)
	}
	next.Values[name] = addr
	return next
}

// ListValue is an ordered sequence of heap addresses.
type ListValue struct {
	Elements []HeapAddress
}

// NewListValue returns an empty list.
func NewListValue() ListValue {
	return ListValue{}
}

// Clone deep-copies the element slice.
func (l ListValue) Clone() ListValue {
	elems := make([]HeapAddress, len(l.Elements))
	copy(elems, l.Elements)
	return ListValue{Elements: elems}
}

// WithAppend returns a new ListValue with addr appended.
func (l ListValue) WithAppend(addr HeapAddress) ListValue {
	next := l.Clone()
	next.Elements = append(next.Elements, addr)
	return next
}

// WithSet returns a new ListValue with the element at index replaced.
func (l ListValue) WithSet(index int, addr HeapAddress) ListValue {
	next := l.Clone()
	next.Elements[index] = addr
	return next
}

// HeapValue is the tagged union stored at every HeapAddress.
type HeapValue struct {
	Kind ValueKind

	Int    int64
	Float  float64
	Bool   bool
	Str    string
	Fn     FunctionValue
	Object ObjectValue
	List   ListValue
}

// Clone deep-copies the variant-specific payload.
func (v HeapValue) Clone() HeapValue {
	next := v
	next.Fn = v.Fn.Clone()
	next.Object = v.Object.Clone()
	next.List = v.List.Clone()
	return next
}

func IntValue(i int64) HeapValue      { return HeapValue{Kind: KindInt, Int: i} }
func FloatValue(f float64) HeapValue  { return HeapValue{Kind: KindFloat, Float: f} }
func BoolValue(b bool) HeapValue      { return HeapValue{Kind: KindBool, Bool: b} }
func StringValue(s string) HeapValue  { return HeapValue{Kind: KindString, Str: s} }
func NullValue() HeapValue            { return HeapValue{Kind: KindNull} }
func FunctionVal(f FunctionValue) HeapValue { return HeapValue{Kind: KindFunction, Fn: f} }
func ObjectVal(o ObjectValue) HeapValue     { return HeapValue{Kind: KindObject, Object: o} }
func ListVal(l ListValue) HeapValue         { return HeapValue{Kind: KindList, List: l} }

// Truthy implements the ChronoVM truthiness rule used by NOT, JUMP_IF_FALSE
// and JUMP_IF_TRUE alike: false, numeric zero, null and the empty string are
// falsy; everything else (including non-empty strings, objects, lists and
// functions) is truthy.
func (v HeapValue) Truthy() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindNull:
		return false
	case KindString:
		return v.Str != ""
	default:
		return true
	}
}

// Format renders the value the way PRINT emits it to the output buffer.
func (v HeapValue) Format() string {
	switch v.Kind {
	case KindNull:
		return "None"
	case KindBool:
		if v.Bool {
			return "True"
		}
		return "False"
	case KindList:
		return "[list]"
	case KindObject:
		return "{object}"
	case KindFunction:
		return "<function>"
	case KindInt:
		return formatInt(v.Int)
	case KindFloat:
		return formatFloat(v.Float)
	case KindString:
		return v.Str
	default:
		return ""
	}
}
