package reload

import (
	"errors"
	"fmt"
	"sync"
)

// Invoker is a resolved-member handle. It keeps describing the version it
// was resolved against, but every Invoke dispatches to the live version.
type Invoker interface {
	// Invoke calls a method or constructor, or reads (no args) or writes
	// (one arg) a field.
	Invoke(target Value, args ...Value) (Value, error)

	// Descriptor returns the member as it was when the invoker was resolved.
	Descriptor() *MemberDescriptor

	// NativeHandle returns a fresh reflective member on every call.
	NativeHandle() *Member

	// Type returns the declaring type.
	Type() *ReloadableType

	// Version returns the sequence number the invoker was resolved against.
	Version() int
}

// invokerBase holds what both invoker variants share.
type invokerBase struct {
	desc  *MemberDescriptor
	owner *ReloadableType // back-reference; the invoker never owns the type
	seq   int
	self  Invoker

	tmplOnce sync.Once
	tmpl     *Member
}

func (b *invokerBase) Descriptor() *MemberDescriptor { return b.desc }
func (b *invokerBase) Type() *ReloadableType         { return b.owner }
func (b *invokerBase) Version() int                  { return b.seq }

// NativeHandle materializes the immutable template once and hands out an
// independent copy per request, so accessibility flags never leak between
// callers.
func (b *invokerBase) NativeHandle() *Member {
	b.tmplOnce.Do(func() {
		b.tmpl = newMember(b.desc, b.self)
	})
	return b.tmpl.clone()
}

// originalInvoker serves members of fixed types, whose only version is the
// original one. No version re-check is needed.
type originalInvoker struct {
	invokerBase
}

func (i *originalInvoker) Invoke(target Value, args ...Value) (Value, error) {
	v := i.owner.CurrentVersion()
	res, err := dispatch(i.owner, v, i.desc, target, args)
	i.owner.registry.ctx.metrics.invoked(invokeResult(err))
	return res, err
}

// currentInvoker serves members of reloadable types. Each call re-reads the
// live version and forwards to it.
type currentInvoker struct {
	invokerBase
}

func (i *currentInvoker) Invoke(target Value, args ...Value) (Value, error) {
	metrics := i.owner.registry.ctx.metrics
	v := i.owner.CurrentVersion()
	cur, ok := v.Members.Get(i.desc.kind, i.desc.Key())
	if !ok {
		metrics.invoked(invokeResultMemberGone)
		return nil, fmt.Errorf("%w: %s (removed after v%d, live v%d)", ErrMemberNoLongerExists, i.desc, i.seq, v.Seq)
	}
	res, err := dispatch(i.owner, v, cur, target, args)
	metrics.invoked(invokeResult(err))
	return res, err
}

func invokeResult(err error) string {
	switch {
	case err == nil:
		return invokeResultOK
	case errors.Is(err, ErrInvocationFailure):
		return invokeResultFailure
	default:
		return invokeResultIllegalState
	}
}

func newInvoker(t *ReloadableType, v *Version, d *MemberDescriptor) Invoker {
	if t.fixed {
		i := &originalInvoker{invokerBase{desc: d, owner: t, seq: v.Seq}}
		i.self = i
		return i
	}
	i := &currentInvoker{invokerBase{desc: d, owner: t, seq: v.Seq}}
	i.self = i
	return i
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// dispatch runs member d, declared by t in live version v.
func dispatch(t *ReloadableType, v *Version, d *MemberDescriptor, target Value, args []Value) (Value, error) {
	switch d.kind {
	case KindField:
		return accessField(t, d, target, args)
	case KindConstructor:
		return construct(t, v, d, args)
	}

	coerced, err := coerceArgs(d, args)
	if err != nil {
		return nil, err
	}
	if d.modifiers.IsStatic() {
		body, ok := v.bodies[d.Key()]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no body", ErrAbstractMethod, d)
		}
		return callBody(d, body, nil, coerced)
	}

	inst, err := checkTarget(t, d, target)
	if err != nil {
		return nil, err
	}
	body, impl, err := resolveVirtual(t, v, d, inst)
	if err != nil {
		return nil, err
	}
	return callBody(impl, body, inst, coerced)
}

// resolveVirtual finds the body a call on inst reaches: the most-derived
// concrete declaration along the live superclass chain, then a default
// method of the live interfaces. Private members are never overridden.
func resolveVirtual(t *ReloadableType, v *Version, d *MemberDescriptor, inst *Instance) (Body, *MemberDescriptor, error) {
	key := d.Key()
	if d.modifiers.IsPrivate() {
		if body, ok := v.bodies[key]; ok {
			return body, d, nil
		}
		return nil, nil, fmt.Errorf("%w: %s has no body", ErrAbstractMethod, d)
	}

	visited := make(map[*ReloadableType]bool)
	var classes []*ReloadableType
	for c := inst.typ; c != nil && !visited[c]; c = c.resolve(c.CurrentVersion().Superclass) {
		visited[c] = true
		classes = append(classes, c)
		cv := c.CurrentVersion()
		md, ok := cv.Members.Get(KindMethod, key)
		if !ok || md.modifiers.IsStatic() || md.modifiers.IsAbstract() {
			continue
		}
		if md.modifiers.IsPrivate() && c != t {
			continue
		}
		if body, ok := cv.bodies[key]; ok {
			return body, md, nil
		}
	}

	// default methods, breadth first over the interfaces of each class
	queue := make([]*ReloadableType, 0)
	for _, c := range classes {
		for _, n := range c.CurrentVersion().Interfaces {
			queue = append(queue, c.resolve(n))
		}
	}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it == nil || visited[it] {
			continue
		}
		visited[it] = true
		iv := it.CurrentVersion()
		if md, ok := iv.Members.Get(KindMethod, key); ok && !md.modifiers.IsStatic() && !md.modifiers.IsAbstract() {
			if body, ok := iv.bodies[key]; ok {
				return body, md, nil
			}
		}
		for _, n := range iv.Interfaces {
			queue = append(queue, it.resolve(n))
		}
	}
	return nil, nil, fmt.Errorf("%w: %s on %s", ErrAbstractMethod, d, inst.typ.name)
}

func construct(t *ReloadableType, v *Version, d *MemberDescriptor, args []Value) (Value, error) {
	coerced, err := coerceArgs(d, args)
	if err != nil {
		return nil, err
	}
	inst, err := t.NewInstance()
	if err != nil {
		return nil, err
	}
	if body, ok := v.bodies[d.Key()]; ok {
		if _, err := callBody(d, body, inst, coerced); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func accessField(t *ReloadableType, d *MemberDescriptor, target Value, args []Value) (Value, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("%w: field %s takes 0 (get) or 1 (set) arguments, got %d", ErrIllegalArgument, d, len(args))
	}

	var inst *Instance
	if !d.modifiers.IsStatic() {
		var err error
		if inst, err = checkTarget(t, d, target); err != nil {
			return nil, err
		}
	}

	if len(args) == 0 {
		if inst == nil {
			return t.getStatic(d), nil
		}
		return inst.getField(d), nil
	}

	val, err := Coerce(d.signature, args[0])
	if err != nil {
		return nil, fmt.Errorf("set %s: %w", d, err)
	}
	if inst == nil {
		t.setStatic(d, val)
	} else {
		inst.setField(d, val)
	}
	return nil, nil
}

func checkTarget(t *ReloadableType, d *MemberDescriptor, target Value) (*Instance, error) {
	inst, ok := target.(*Instance)
	if !ok || inst == nil {
		return nil, fmt.Errorf("%w: %s needs an instance of %s, got %T", ErrIllegalArgument, d, t.name, target)
	}
	if !inst.typ.IsSubtypeOf(t) {
		return nil, fmt.Errorf("%w: object is not an instance of declaring type %s (got %s)", ErrIllegalArgument, t.name, inst.typ.name)
	}
	return inst, nil
}

func coerceArgs(d *MemberDescriptor, args []Value) ([]Value, error) {
	params := d.ParamTypes()
	if len(args) != len(params) {
		return nil, fmt.Errorf("%w: %s wants %d arguments, got %d", ErrIllegalArgument, d, len(params), len(args))
	}
	out := make([]Value, len(args))
	for i, p := range params {
		v, err := Coerce(p, args[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, d, err)
		}
		out[i] = v
	}
	return out, nil
}

// callBody runs a body, turning returned errors and panics into
// *InvocationError.
func callBody(d *MemberDescriptor, body Body, target *Instance, args []Value) (result Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &InvocationError{Member: d.String(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	res, err := body(target, args)
	if err != nil {
		return nil, &InvocationError{Member: d.String(), Err: err}
	}
	return res, nil
}
