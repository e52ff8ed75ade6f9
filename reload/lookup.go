package reload

import (
	"fmt"
	"slices"
)

// Lookup operation names, used for metrics.
const (
	opDeclared   = "declared"
	opPublic     = "public"
	opCollectAll = "collect_all"
)

// versionView picks the version of a type a lookup observes.
type versionView func(t *ReloadableType) *Version

func currentView(t *ReloadableType) *Version { return t.CurrentVersion() }

// found is one resolved member along with where it was found.
type found struct {
	typ  *ReloadableType
	ver  *Version
	desc *MemberDescriptor
}

func (f found) invoker() Invoker { return newInvoker(f.typ, f.ver, f.desc) }

func errInvalidKind(kind Kind) error {
	return fmt.Errorf("%w: unknown member kind %s", ErrIllegalArgument, kind)
}

func matches(d *MemberDescriptor, name, signature string) bool {
	return d.name == name && (signature == "" || d.signature == signature)
}

// ---------------------------------------------------------------------------
// DeclaredLookup
// ---------------------------------------------------------------------------

// DeclaredLookup searches only the live version's own members of t, of any
// visibility. Without a signature the first declared member with the name
// wins.
func DeclaredLookup(t *ReloadableType, kind Kind, name string, signature ...string) (Invoker, error) {
	if !kind.valid() {
		err := errInvalidKind(kind)
		t.registry.ctx.metrics.lookup(opDeclared, err)
		return nil, err
	}
	sig := ""
	if len(signature) > 0 {
		sig = signature[0]
	}
	if kind == KindConstructor && name == "" {
		name = ConstructorName
	}
	v := t.CurrentVersion()

	var d *MemberDescriptor
	var ok bool
	if sig == "" {
		d, ok = v.Members.First(kind, name)
	} else {
		d, ok = v.Members.Get(kind, MemberKey{Name: name, Signature: sig})
	}

	var err error
	if !ok {
		err = &LookupError{Type: t.name, Kind: kind, Name: name, Signature: sig}
	}
	t.registry.ctx.metrics.lookup(opDeclared, err)
	if err != nil {
		return nil, err
	}
	return newInvoker(t, v, d), nil
}

// DeclaredMembers returns every own member of the given kind declared by
// the live version of t, in declaration order.
func DeclaredMembers(t *ReloadableType, kind Kind) []Invoker {
	if !kind.valid() {
		return nil
	}
	v := t.CurrentVersion()
	all := v.Members.tables[kind].order
	out := make([]Invoker, len(all))
	for i, d := range all {
		out[i] = newInvoker(t, v, d)
	}
	return out
}

// ---------------------------------------------------------------------------
// PublicLookup
// ---------------------------------------------------------------------------

// PublicLookup resolves a single public member visible on t, the way a
// native "get public member" call does:
//   - fields: own declared, then superinterfaces (recursively, in
//     declaration order), then the superclass
//   - methods: own declared, then the superclass chain, then
//     superinterfaces; static interface methods are not inherited
//   - constructors: own declared only
//
// An empty signature matches any signature.
func PublicLookup(t *ReloadableType, kind Kind, name, signature string) (Invoker, error) {
	if !kind.valid() {
		err := errInvalidKind(kind)
		t.registry.ctx.metrics.lookup(opPublic, err)
		return nil, err
	}
	if kind == KindConstructor && name == "" {
		name = ConstructorName
	}
	var f found
	var ok bool
	visited := make(map[*ReloadableType]bool)
	switch kind {
	case KindField:
		f, ok = findPublicField(t, name, signature, visited)
	case KindMethod:
		f, ok = findPublicMethod(t, name, signature, true, visited)
	case KindConstructor:
		f, ok = findOwnPublic(t, t.CurrentVersion(), KindConstructor, name, signature)
	}

	var err error
	if !ok {
		err = &LookupError{Type: t.name, Kind: kind, Name: name, Signature: signature}
	}
	t.registry.ctx.metrics.lookup(opPublic, err)
	if err != nil {
		return nil, err
	}
	return f.invoker(), nil
}

func findOwnPublic(t *ReloadableType, v *Version, kind Kind, name, signature string) (found, bool) {
	for _, d := range v.Members.tables[kind].order {
		if d.modifiers.IsPublic() && matches(d, name, signature) {
			return found{typ: t, ver: v, desc: d}, true
		}
	}
	return found{}, false
}

func findPublicField(t *ReloadableType, name, signature string, visited map[*ReloadableType]bool) (found, bool) {
	if t == nil || visited[t] {
		return found{}, false
	}
	visited[t] = true
	v := t.CurrentVersion()

	if f, ok := findOwnPublic(t, v, KindField, name, signature); ok {
		return f, true
	}
	for _, n := range v.Interfaces {
		if f, ok := findPublicField(t.resolve(n), name, signature, visited); ok {
			return f, true
		}
	}
	if !v.IsInterface() {
		return findPublicField(t.resolve(v.Superclass), name, signature, visited)
	}
	return found{}, false
}

func findPublicMethod(t *ReloadableType, name, signature string, top bool, visited map[*ReloadableType]bool) (found, bool) {
	if t == nil || visited[t] {
		return found{}, false
	}
	visited[t] = true
	v := t.CurrentVersion()

	for _, d := range v.Members.tables[KindMethod].order {
		if !d.modifiers.IsPublic() || !matches(d, name, signature) {
			continue
		}
		if !top && v.IsInterface() && d.modifiers.IsStatic() {
			continue
		}
		return found{typ: t, ver: v, desc: d}, true
	}
	if !v.IsInterface() {
		if f, ok := findPublicMethod(t.resolve(v.Superclass), name, signature, false, visited); ok {
			return f, true
		}
	}
	for _, n := range v.Interfaces {
		if f, ok := findPublicMethod(t.resolve(n), name, signature, false, visited); ok {
			return f, true
		}
	}
	return found{}, false
}

// ---------------------------------------------------------------------------
// CollectAllPublicLookup
// ---------------------------------------------------------------------------

// collectKey identifies a cached CollectAllPublicLookup result. The
// generation is read before collecting and advances only after a new
// version is visible, so a result computed from a superseded version is
// filed under a generation no later reader asks for.
type collectKey struct {
	typ  *ReloadableType
	kind Kind
	gen  uint64
}

// CollectAllPublicLookup returns every public member visible on t, the way
// a native "get all public members" call does. Interfaces are visited in
// reverse declaration order, then the superclass (unless t is an
// interface), then t's own public members; each step overwrites earlier
// entries with the same MemberKey, so the most-derived declaration wins.
// The result is sorted by name, then signature.
func CollectAllPublicLookup(t *ReloadableType, kind Kind) []Invoker {
	ctx := t.registry.ctx
	if !kind.valid() {
		ctx.metrics.lookup(opCollectAll, errInvalidKind(kind))
		return nil
	}
	ctx.metrics.lookup(opCollectAll, nil)

	key := collectKey{typ: t, kind: kind, gen: ctx.lookupGen.Load()}
	if ctx.cache != nil {
		if cached, ok := ctx.cache.Get(key); ok {
			ctx.metrics.cacheHits.Inc()
			return slices.Clone(cached)
		}
	}

	out := collectAll(t, kind, currentView)
	if ctx.cache != nil {
		ctx.cache.Add(key, slices.Clone(out))
	}
	return out
}

// CollectAllPublicLookupAt is CollectAllPublicLookup pinned to version seq
// of t. Ancestors are observed at the newest version published no later
// than the pinned version, so members added afterwards are invisible.
func CollectAllPublicLookupAt(t *ReloadableType, kind Kind, seq int) ([]Invoker, error) {
	if !kind.valid() {
		err := errInvalidKind(kind)
		t.registry.ctx.metrics.lookup(opCollectAll, err)
		return nil, err
	}
	pinned, ok := t.Version(seq)
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrNoSuchVersion, t.name, seq)
	}
	t.registry.ctx.metrics.lookup(opCollectAll, nil)
	view := func(c *ReloadableType) *Version {
		if c == t {
			return pinned
		}
		return c.versionAtEpoch(pinned.Epoch)
	}
	return collectAll(t, kind, view), nil
}

func collectAll(t *ReloadableType, kind Kind, view versionView) []Invoker {
	acc := make(map[MemberKey]found)
	collectInto(t, kind, view, true, acc, make(map[*ReloadableType]bool))

	keys := make([]MemberKey, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, MemberKey.compare)

	out := make([]Invoker, len(keys))
	for i, k := range keys {
		out[i] = acc[k].invoker()
	}
	return out
}

func collectInto(t *ReloadableType, kind Kind, view versionView, top bool, acc map[MemberKey]found, visiting map[*ReloadableType]bool) {
	if t == nil || visiting[t] {
		return
	}
	v := view(t)
	if v == nil {
		return
	}
	visiting[t] = true
	defer delete(visiting, t)

	if kind != KindConstructor {
		for i := len(v.Interfaces) - 1; i >= 0; i-- {
			collectInto(t.resolve(v.Interfaces[i]), kind, view, false, acc, visiting)
		}
		if !v.IsInterface() {
			collectInto(t.resolve(v.Superclass), kind, view, false, acc, visiting)
		}
	} else if !top {
		return
	}

	for _, d := range v.Members.tables[kind].order {
		if !d.modifiers.IsPublic() {
			continue
		}
		if !top && v.IsInterface() && kind == KindMethod && d.modifiers.IsStatic() {
			continue
		}
		acc[d.Key()] = found{typ: t, ver: v, desc: d}
	}
}
