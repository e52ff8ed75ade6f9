package reload

import "strings"

// Modifiers is the access and property bit set of a type or member.
type Modifiers uint32

const (
	Public Modifiers = 1 << iota
	Private
	Protected
	Static
	Final
	Synchronized
	Volatile
	Transient
	Native
	Interface
	Abstract
	Strict
	Synthetic
	Annotation
	Enum
	Default
)

// accessMask covers the three explicit access levels.
const accessMask = Public | Private | Protected

var modifierNames = []struct {
	bit  Modifiers
	name string
}{
	{Public, "public"},
	{Protected, "protected"},
	{Private, "private"},
	{Abstract, "abstract"},
	{Static, "static"},
	{Final, "final"},
	{Transient, "transient"},
	{Volatile, "volatile"},
	{Synchronized, "synchronized"},
	{Native, "native"},
	{Strict, "strictfp"},
	{Interface, "interface"},
	{Annotation, "annotation"},
	{Enum, "enum"},
	{Default, "default"},
	{Synthetic, "synthetic"},
}

// Has reports whether every bit in m2 is set.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

func (m Modifiers) IsPublic() bool    { return m.Has(Public) }
func (m Modifiers) IsPrivate() bool   { return m.Has(Private) }
func (m Modifiers) IsProtected() bool { return m.Has(Protected) }
func (m Modifiers) IsStatic() bool    { return m.Has(Static) }
func (m Modifiers) IsAbstract() bool  { return m.Has(Abstract) }
func (m Modifiers) IsInterface() bool { return m.Has(Interface) }

// IsPackagePrivate reports a member with no explicit access level.
func (m Modifiers) IsPackagePrivate() bool { return m&accessMask == 0 }

// String renders the modifiers in canonical declaration order.
func (m Modifiers) String() string {
	var parts []string
	for _, mn := range modifierNames {
		if m&mn.bit != 0 {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseModifiers is the inverse of String. Unknown words are returned as
// the second result so callers can report them.
func ParseModifiers(s string) (Modifiers, []string) {
	var m Modifiers
	var unknown []string
	for _, word := range strings.Fields(s) {
		found := false
		for _, mn := range modifierNames {
			if mn.name == word {
				m |= mn.bit
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, word)
		}
	}
	return m, unknown
}
