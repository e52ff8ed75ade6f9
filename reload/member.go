package reload

import (
	"fmt"
	"slices"
	"strings"
)

// Kind distinguishes fields, methods and constructors.
type Kind uint8

const (
	KindField Kind = iota
	KindMethod
	KindConstructor
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindMethod:
		return "method"
	case KindConstructor:
		return "constructor"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) valid() bool { return k <= KindConstructor }

// ConstructorName is the member name every constructor is declared under.
const ConstructorName = "<init>"

// MemberKey identifies a member across versions of its type. Two members
// collide iff both name and signature match.
type MemberKey struct {
	Name      string
	Signature string
}

func (k MemberKey) String() string {
	if strings.HasPrefix(k.Signature, "(") {
		return k.Name + k.Signature
	}
	return k.Name + ":" + k.Signature
}

func (k MemberKey) compare(o MemberKey) int {
	if c := strings.Compare(k.Name, o.Name); c != 0 {
		return c
	}
	return strings.Compare(k.Signature, o.Signature)
}

// MethodSignature renders parameter and return type names as "(p1,p2)ret".
func MethodSignature(params []string, ret string) string {
	if ret == "" {
		ret = "void"
	}
	return "(" + strings.Join(params, ",") + ")" + ret
}

// ParseMethodSignature splits a signature produced by MethodSignature.
func ParseMethodSignature(sig string) (params []string, ret string, ok bool) {
	if !strings.HasPrefix(sig, "(") {
		return nil, "", false
	}
	end := strings.IndexByte(sig, ')')
	if end < 0 {
		return nil, "", false
	}
	inner := sig[1:end]
	if inner != "" {
		params = strings.Split(inner, ",")
	}
	return params, sig[end+1:], true
}

// ---------------------------------------------------------------------------
// MemberDescriptor
// ---------------------------------------------------------------------------

// MemberDescriptor describes one field, method or constructor of one
// version of a type. It is immutable once produced.
type MemberDescriptor struct {
	owner            string
	kind             Kind
	name             string
	signature        string
	modifiers        Modifiers
	annotations      []string
	impl             string
	declaringVersion int
}

func newDescriptor(owner string, kind Kind, name, signature string, mods Modifiers, annotations []string, impl string, version int) *MemberDescriptor {
	anns := slices.Clone(annotations)
	slices.Sort(anns)
	return &MemberDescriptor{
		owner:            owner,
		kind:             kind,
		name:             name,
		signature:        signature,
		modifiers:        mods,
		annotations:      slices.Compact(anns),
		impl:             impl,
		declaringVersion: version,
	}
}

// Owner returns the name of the declaring type.
func (d *MemberDescriptor) Owner() string { return d.owner }

func (d *MemberDescriptor) Kind() Kind           { return d.kind }
func (d *MemberDescriptor) Name() string         { return d.name }
func (d *MemberDescriptor) Signature() string    { return d.signature }
func (d *MemberDescriptor) Modifiers() Modifiers { return d.modifiers }

// Key returns the cross-version identity of the member.
func (d *MemberDescriptor) Key() MemberKey {
	return MemberKey{Name: d.name, Signature: d.signature}
}

// Annotations returns the sorted annotation type names. The slice is a copy.
func (d *MemberDescriptor) Annotations() []string {
	return slices.Clone(d.annotations)
}

// HasAnnotation reports whether the member carries the named annotation.
func (d *MemberDescriptor) HasAnnotation(name string) bool {
	_, found := slices.BinarySearch(d.annotations, name)
	return found
}

// Impl returns the body reference the Linker resolves for this member.
func (d *MemberDescriptor) Impl() string { return d.impl }

// DeclaringVersion returns the sequence number of the version this
// descriptor was produced from.
func (d *MemberDescriptor) DeclaringVersion() int { return d.declaringVersion }

// FieldType returns the declared type of a field, or "" for other kinds.
func (d *MemberDescriptor) FieldType() string {
	if d.kind != KindField {
		return ""
	}
	return d.signature
}

// ParamTypes returns the parameter type names of a method or constructor.
func (d *MemberDescriptor) ParamTypes() []string {
	params, _, _ := ParseMethodSignature(d.signature)
	return params
}

// ReturnType returns the return type name of a method or constructor.
func (d *MemberDescriptor) ReturnType() string {
	_, ret, _ := ParseMethodSignature(d.signature)
	return ret
}

// SameContent reports whether two descriptors agree on everything but the
// version they were produced from.
func (d *MemberDescriptor) SameContent(o *MemberDescriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	return d.owner == o.owner &&
		d.kind == o.kind &&
		d.name == o.name &&
		d.signature == o.signature &&
		d.modifiers == o.modifiers &&
		d.impl == o.impl &&
		slices.Equal(d.annotations, o.annotations)
}

// String renders the member the way a reflective toString would.
func (d *MemberDescriptor) String() string {
	var b strings.Builder
	if mods := d.modifiers.String(); mods != "" {
		b.WriteString(mods)
		b.WriteByte(' ')
	}
	switch d.kind {
	case KindField:
		b.WriteString(d.signature)
		b.WriteByte(' ')
		b.WriteString(d.owner)
		b.WriteByte('.')
		b.WriteString(d.name)
	case KindConstructor:
		b.WriteString(d.owner)
		b.WriteString("(" + strings.Join(d.ParamTypes(), ",") + ")")
	default:
		b.WriteString(d.ReturnType())
		b.WriteByte(' ')
		b.WriteString(d.owner)
		b.WriteByte('.')
		b.WriteString(d.name)
		b.WriteString("(" + strings.Join(d.ParamTypes(), ",") + ")")
	}
	return b.String()
}
