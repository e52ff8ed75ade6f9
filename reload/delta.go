package reload

import (
	"fmt"
	"slices"
)

// ChangeKind classifies how a member surviving a reload changed.
type ChangeKind uint8

const (
	ChangeModifiers ChangeKind = 1 << iota
	ChangeAnnotations
	ChangeBoth = ChangeModifiers | ChangeAnnotations
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeModifiers:
		return "modifiers"
	case ChangeAnnotations:
		return "annotations"
	case ChangeBoth:
		return "modifiers+annotations"
	}
	return fmt.Sprintf("ChangeKind(%d)", uint8(c))
}

// MemberChange records one member present in both versions whose metadata
// differs.
type MemberChange struct {
	Old  *MemberDescriptor
	New  *MemberDescriptor
	Kind ChangeKind
}

// TypeDelta is the difference between two consecutive versions of a type.
// A key never appears in both Added and Removed.
type TypeDelta struct {
	Type    string
	From    int // -1 for the original version
	To      int
	Added   []*MemberDescriptor
	Removed []*MemberDescriptor
	Changed map[MemberKey]MemberChange

	SuperclassChanged    bool
	InterfacesChanged    bool
	TypeModifiersChanged bool
	StaticInitChanged    bool
}

// IsEmpty reports a reload that changed nothing observable.
func (d *TypeDelta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 &&
		!d.SuperclassChanged && !d.InterfacesChanged && !d.TypeModifiersChanged &&
		!d.StaticInitChanged
}

// TouchesStatics reports whether the transition affects static state.
func (d *TypeDelta) TouchesStatics() bool {
	if d.StaticInitChanged {
		return true
	}
	isStaticField := func(m *MemberDescriptor) bool {
		return m.kind == KindField && m.modifiers.IsStatic()
	}
	if slices.ContainsFunc(d.Added, isStaticField) || slices.ContainsFunc(d.Removed, isStaticField) {
		return true
	}
	for _, c := range d.Changed {
		if isStaticField(c.Old) || isStaticField(c.New) {
			return true
		}
	}
	return false
}

// Summary renders a one-line description suitable for logs.
func (d *TypeDelta) Summary() string {
	return fmt.Sprintf("%s v%d->v%d: +%d -%d ~%d", d.Type, d.From, d.To, len(d.Added), len(d.Removed), len(d.Changed))
}

// ComputeDelta diffs the declared members and type metadata of two versions.
// prev may be nil for the original version, in which case every member is
// reported as added.
func ComputeDelta(prev, next *Version) *TypeDelta {
	d := &TypeDelta{
		Type:    next.typeName,
		From:    -1,
		To:      next.Seq,
		Changed: make(map[MemberKey]MemberChange),
	}
	if prev == nil {
		for kind := KindField; kind <= KindConstructor; kind++ {
			d.Added = append(d.Added, next.Members.All(kind)...)
		}
		return d
	}
	d.From = prev.Seq

	for kind := KindField; kind <= KindConstructor; kind++ {
		for _, nm := range next.Members.tables[kind].order {
			om, ok := prev.Members.Get(kind, nm.Key())
			if !ok {
				d.Added = append(d.Added, nm)
				continue
			}
			var ck ChangeKind
			if om.modifiers != nm.modifiers {
				ck |= ChangeModifiers
			}
			if !slices.Equal(om.annotations, nm.annotations) {
				ck |= ChangeAnnotations
			}
			if ck != 0 {
				d.Changed[nm.Key()] = MemberChange{Old: om, New: nm, Kind: ck}
			}
		}
		for _, om := range prev.Members.tables[kind].order {
			if !next.Members.Has(kind, om.Key()) {
				d.Removed = append(d.Removed, om)
			}
		}
	}

	d.SuperclassChanged = prev.Superclass != next.Superclass
	d.InterfacesChanged = !slices.Equal(prev.Interfaces, next.Interfaces)
	d.TypeModifiersChanged = prev.Modifiers != next.Modifiers
	d.StaticInitChanged = prev.staticInit != next.staticInit
	return d
}

// ---------------------------------------------------------------------------
// Layout compatibility
// ---------------------------------------------------------------------------

// storageClass groups field types by the storage an instance needs for them.
// Every reference type shares one class; each primitive is its own.
func storageClass(typeName string) string {
	if isPrimitive(typeName) {
		return typeName
	}
	return "reference"
}

// CheckLayout reports the changes between two versions that would
// invalidate the field storage of instances created under prev.
func CheckLayout(prev, next *Version) []LayoutViolation {
	if prev == nil {
		return nil
	}
	var out []LayoutViolation
	if prev.Superclass != next.Superclass {
		out = append(out, LayoutViolation{
			Member: next.typeName,
			Reason: fmt.Sprintf("superclass changed from %q to %q", prev.Superclass, next.Superclass),
		})
	}
	for _, of := range prev.Members.tables[KindField].order {
		nf, ok := next.Members.First(KindField, of.name)
		if !ok {
			continue
		}
		if sc, nsc := storageClass(of.signature), storageClass(nf.signature); sc != nsc {
			out = append(out, LayoutViolation{
				Member: of.name,
				Reason: fmt.Sprintf("storage changed from %s (%s) to %s (%s)", sc, of.signature, nsc, nf.signature),
			})
		}
		if of.modifiers.IsStatic() != nf.modifiers.IsStatic() {
			out = append(out, LayoutViolation{
				Member: of.name,
				Reason: "changed between static and instance storage",
			})
		}
	}
	return out
}
