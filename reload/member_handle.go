package reload

import (
	"fmt"
	"slices"
)

// Member is the reflective member object handed to callers. Every call to
// Invoker.NativeHandle returns a new Member, so the accessible flag set by
// one caller is never seen by another.
type Member struct {
	desc        *MemberDescriptor
	annotations []string
	invoker     Invoker
	accessible  bool
}

func newMember(d *MemberDescriptor, inv Invoker) *Member {
	return &Member{desc: d, annotations: d.Annotations(), invoker: inv}
}

func (m *Member) clone() *Member {
	return &Member{
		desc:        m.desc,
		annotations: slices.Clone(m.annotations),
		invoker:     m.invoker,
	}
}

func (m *Member) Name() string                  { return m.desc.name }
func (m *Member) Kind() Kind                    { return m.desc.kind }
func (m *Member) Modifiers() Modifiers          { return m.desc.modifiers }
func (m *Member) DeclaringType() string         { return m.desc.owner }
func (m *Member) Descriptor() *MemberDescriptor { return m.desc }

// Annotations returns this handle's annotation list. Callers may modify it
// without affecting other handles.
func (m *Member) Annotations() []string { return m.annotations }

// SetAccessible overrides access checks for this handle only.
func (m *Member) SetAccessible(flag bool) { m.accessible = flag }

// IsAccessible reports the access-check override of this handle.
func (m *Member) IsAccessible() bool { return m.accessible }

// Invoke checks access and forwards to the invoker.
func (m *Member) Invoke(target Value, args ...Value) (Value, error) {
	if !m.accessible && !m.desc.modifiers.IsPublic() {
		return nil, fmt.Errorf("%w: %s is not public", ErrIllegalAccess, m.desc)
	}
	return m.invoker.Invoke(target, args...)
}

// String implements the Stringer interface.
func (m *Member) String() string { return m.desc.String() }
