package reload

import (
	"fmt"
	"math"
	"sync"
)

// Value is any value flowing through an invocation.
type Value = any

// primitive type names and their zero values.
var primitiveZero = map[string]Value{
	"boolean": false,
	"byte":    int64(0),
	"short":   int64(0),
	"char":    int64(0),
	"int":     int64(0),
	"long":    int64(0),
	"float":   float64(0),
	"double":  float64(0),
}

func isPrimitive(typeName string) bool {
	_, ok := primitiveZero[typeName]
	return ok
}

// ZeroValue returns the value an unset field of the type reads as.
func ZeroValue(typeName string) Value {
	return primitiveZero[typeName]
}

// integer primitive ranges. char is unsigned and only accepts uint16.
var intRange = map[string][2]int64{
	"byte":  {math.MinInt8, math.MaxInt8},
	"short": {math.MinInt16, math.MaxInt16},
	"int":   {math.MinInt32, math.MaxInt32},
	"long":  {math.MinInt64, math.MaxInt64},
}

// Coerce converts v to the representation used for parameters and fields
// of the named type. Integer primitives are stored as int64 and accept any
// Go integer within the primitive's range; float and double are stored as
// float64. float rejects float64 values, which would lose precision.
func Coerce(typeName string, v Value) (Value, error) {
	switch typeName {
	case "boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case "byte", "short", "int", "long":
		if i, ok := toInt64(v); ok {
			r := intRange[typeName]
			if i < r[0] || i > r[1] {
				return nil, fmt.Errorf("%w: %d overflows %s", ErrIllegalArgument, i, typeName)
			}
			return i, nil
		}
	case "char":
		if c, ok := v.(uint16); ok {
			return int64(c), nil
		}
	case "float":
		if f, ok := v.(float32); ok {
			return float64(f), nil
		}
		if i, ok := toInt64(v); ok {
			return float64(float32(i)), nil
		}
	case "double":
		if f, ok := v.(float64); ok {
			return f, nil
		}
		if f, ok := v.(float32); ok {
			return float64(f), nil
		}
		if i, ok := toInt64(v); ok {
			return float64(i), nil
		}
	case "void":
		return nil, nil
	default:
		// reference types accept any value, including nil
		return v, nil
	}
	return nil, fmt.Errorf("%w: cannot use %T as %s", ErrIllegalArgument, v, typeName)
}

func toInt64(v Value) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n), true
		}
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Instance
// ---------------------------------------------------------------------------

// slotKey names one field slot of an instance: the declaring type and the
// field's MemberKey. A subclass field hiding an inherited one of the same
// name and type gets its own slot.
type slotKey struct {
	owner string
	MemberKey
}

func slotOf(d *MemberDescriptor) slotKey { return slotKey{owner: d.owner, MemberKey: d.Key()} }

// Instance is an object of a reloadable type. Field storage is keyed by
// slot, so a field whose type changes gets fresh storage.
type Instance struct {
	typ *ReloadableType

	mu     sync.RWMutex
	fields map[slotKey]Value
}

func newInstance(t *ReloadableType) *Instance {
	return &Instance{typ: t, fields: make(map[slotKey]Value)}
}

// Type returns the runtime type of the instance.
func (o *Instance) Type() *ReloadableType { return o.typ }

func (o *Instance) getField(d *MemberDescriptor) Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if v, ok := o.fields[slotOf(d)]; ok {
		return v
	}
	return ZeroValue(d.signature)
}

func (o *Instance) setField(d *MemberDescriptor, v Value) {
	o.mu.Lock()
	o.fields[slotOf(d)] = v
	o.mu.Unlock()
}

// field resolves an instance field by name along the live superclass chain.
func (o *Instance) field(name string) (*MemberDescriptor, error) {
	visited := make(map[*ReloadableType]bool)
	for c := o.typ; c != nil && !visited[c]; c = c.resolve(c.CurrentVersion().Superclass) {
		visited[c] = true
		if d, ok := c.CurrentVersion().Members.First(KindField, name); ok && !d.modifiers.IsStatic() {
			return d, nil
		}
	}
	return nil, &LookupError{Type: o.typ.name, Kind: KindField, Name: name}
}

// Get reads an instance field by name. It is meant for bodies, which
// address their own state without going through an Invoker.
func (o *Instance) Get(name string) (Value, error) {
	d, err := o.field(name)
	if err != nil {
		return nil, err
	}
	return o.getField(d), nil
}

// Set writes an instance field by name, coercing v to the field type.
func (o *Instance) Set(name string, v Value) error {
	d, err := o.field(name)
	if err != nil {
		return err
	}
	val, err := Coerce(d.signature, v)
	if err != nil {
		return fmt.Errorf("set %s: %w", d, err)
	}
	o.setField(d, val)
	return nil
}

// String implements the Stringer interface.
func (o *Instance) String() string {
	return "a " + o.typ.Name()
}
