package reload

import "slices"

// memberTable holds the declared members of one kind in declaration order.
type memberTable struct {
	order []*MemberDescriptor
	byKey map[MemberKey]*MemberDescriptor
}

// MemberSet is the declared member set of one version of a type.
// It is immutable once the version is published.
type MemberSet struct {
	tables [3]memberTable
}

func newMemberSet() *MemberSet {
	s := &MemberSet{}
	for i := range s.tables {
		s.tables[i].byKey = make(map[MemberKey]*MemberDescriptor)
	}
	return s
}

func (s *MemberSet) add(d *MemberDescriptor) {
	t := &s.tables[d.kind]
	t.order = append(t.order, d)
	t.byKey[d.Key()] = d
}

// table returns the table for kind; an unknown kind gets an empty one.
func (s *MemberSet) table(kind Kind) memberTable {
	if !kind.valid() {
		return memberTable{}
	}
	return s.tables[kind]
}

// Get returns the member of the given kind with the given key.
func (s *MemberSet) Get(kind Kind, key MemberKey) (*MemberDescriptor, bool) {
	if !kind.valid() {
		return nil, false
	}
	d, ok := s.tables[kind].byKey[key]
	return d, ok
}

// Has reports whether the set declares the member.
func (s *MemberSet) Has(kind Kind, key MemberKey) bool {
	_, ok := s.Get(kind, key)
	return ok
}

// First returns the first declared member of the kind with the given name.
func (s *MemberSet) First(kind Kind, name string) (*MemberDescriptor, bool) {
	for _, d := range s.table(kind).order {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

// ByName returns every declared member of the kind with the given name.
func (s *MemberSet) ByName(kind Kind, name string) []*MemberDescriptor {
	var out []*MemberDescriptor
	for _, d := range s.table(kind).order {
		if d.name == name {
			out = append(out, d)
		}
	}
	return out
}

// All returns the declared members of the kind in declaration order.
func (s *MemberSet) All(kind Kind) []*MemberDescriptor {
	return slices.Clone(s.table(kind).order)
}

// Len returns the number of declared members of the kind.
func (s *MemberSet) Len(kind Kind) int {
	return len(s.table(kind).order)
}

// Count returns the number of declared members of every kind.
func (s *MemberSet) Count() int {
	n := 0
	for i := range s.tables {
		n += len(s.tables[i].order)
	}
	return n
}
