package reload

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// typeState is the published view of a type: every version so far and the
// index of the live one. A new typeState replaces the old one in a single
// atomic store.
type typeState struct {
	versions []*Version
	current  int
}

// ReloadableType owns the original image and the ordered versions of one
// type in one registry.
type ReloadableType struct {
	name     string
	registry *TypeRegistry
	original []byte
	fixed    bool // excluded by policy: a single version that never changes

	mu    sync.Mutex // serializes LoadNewVersion
	state atomic.Pointer[typeState]

	staticsMu sync.RWMutex
	statics   map[MemberKey]Value
}

// LoadResult summarizes one published reload.
type LoadResult struct {
	Type    *ReloadableType
	Version *Version
	Delta   *TypeDelta

	// AcceptedViolations lists the layout violations published because the
	// caller passed AcceptLayoutChange.
	AcceptedViolations []LayoutViolation

	StaticInitRerun bool
	StaticInitErr   error
}

type loadOptions struct {
	acceptLayoutChange bool
}

// LoadOption configures a single LoadNewVersion call.
type LoadOption func(*loadOptions)

// AcceptLayoutChange publishes the version even when it breaks the storage
// layout of existing instances. State stored under the changed fields is
// lost.
func AcceptLayoutChange() LoadOption {
	return func(o *loadOptions) { o.acceptLayoutChange = true }
}

func newReloadableType(r *TypeRegistry, img *TypeImage, data []byte, fixed bool) (*ReloadableType, error) {
	v, err := buildVersion(img, data, 0, r.linker)
	if err != nil {
		return nil, err
	}
	v.Delta = ComputeDelta(nil, v)
	v.Epoch = r.ctx.nextEpoch()
	v.Timestamp = time.Now()

	t := &ReloadableType{
		name:     img.Name,
		registry: r,
		original: slices.Clone(data),
		fixed:    fixed,
		statics:  make(map[MemberKey]Value),
	}
	t.state.Store(&typeState{versions: []*Version{v}, current: 0})
	return t, nil
}

// Name returns the type name.
func (t *ReloadableType) Name() string { return t.name }

// String implements the Stringer interface.
func (t *ReloadableType) String() string { return t.name }

// Registry returns the registry that tracks the type.
func (t *ReloadableType) Registry() *TypeRegistry { return t.registry }

// IsReloadable reports false for types recorded only because a policy
// excluded them from reloading.
func (t *ReloadableType) IsReloadable() bool { return !t.fixed }

// OriginalImage returns a copy of the image the type was first loaded from.
func (t *ReloadableType) OriginalImage() []byte { return slices.Clone(t.original) }

// CurrentVersion returns the live version. It never blocks.
func (t *ReloadableType) CurrentVersion() *Version {
	st := t.state.Load()
	return st.versions[st.current]
}

// CurrentVersionIndex returns the sequence number of the live version.
func (t *ReloadableType) CurrentVersionIndex() int {
	return t.state.Load().current
}

// Version returns the version with the given sequence number.
func (t *ReloadableType) Version(seq int) (*Version, bool) {
	st := t.state.Load()
	if seq < 0 || seq >= len(st.versions) {
		return nil, false
	}
	return st.versions[seq], true
}

// Versions returns every version in publication order.
func (t *ReloadableType) Versions() []*Version {
	return slices.Clone(t.state.Load().versions)
}

// versionAtEpoch returns the newest version published at or before epoch,
// or nil if the type did not exist yet.
func (t *ReloadableType) versionAtEpoch(epoch uint64) *Version {
	versions := t.state.Load().versions
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Epoch <= epoch {
			return versions[i]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reload
// ---------------------------------------------------------------------------

// LoadNewVersion parses an image, computes its delta against the live
// version, and publishes it as the new current version. On any error the
// previous version stays current.
func (t *ReloadableType) LoadNewVersion(image []byte, opts ...LoadOption) (*LoadResult, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := t.registry
	log := r.ctx.logger("type")
	if t.fixed {
		return nil, fmt.Errorf("%w: %s", ErrNotReloadable, t.name)
	}
	if r.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrRegistryClosed, r.name)
	}

	img, err := DecodeImage(image)
	if err == nil && img.Name != t.name {
		err = &ParseError{Type: t.name, Err: fmt.Errorf("%w: image declares %q", ErrCorruptData, img.Name)}
	}
	if err != nil {
		r.ctx.metrics.reloadFailed(reloadResultParseFailure)
		log.Warningf("reload of %s rejected: %v", t.name, err)
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state.Load()
	prev := st.versions[st.current]

	next, err := buildVersion(img, image, len(st.versions), r.linker)
	if err != nil {
		r.ctx.metrics.reloadFailed(reloadResultLinkFailure)
		log.Warningf("reload of %s rejected: %v", t.name, err)
		return nil, err
	}
	next.Delta = ComputeDelta(prev, next)

	violations := CheckLayout(prev, next)
	if len(violations) > 0 && !o.acceptLayoutChange {
		err := &LayoutChangeError{Type: t.name, Violations: violations}
		r.ctx.metrics.reloadFailed(reloadResultLayoutRejected)
		log.Warningf("reload of %s rejected: %v", t.name, err)
		return nil, err
	}

	next.Epoch = r.ctx.nextEpoch()
	next.Timestamp = time.Now()

	versions := append(slices.Clone(st.versions), next)
	t.state.Store(&typeState{versions: versions, current: len(versions) - 1})
	r.ctx.invalidateLookups()
	if len(violations) > 0 {
		t.dropStatics(violations)
	}

	res := &LoadResult{
		Type:               t,
		Version:            next,
		Delta:              next.Delta,
		AcceptedViolations: violations,
	}
	if r.staticInit.ShouldRerunStaticInit(t, next.Delta) {
		res.StaticInitRerun = true
		res.StaticInitErr = t.runStaticInit(next)
		if res.StaticInitErr != nil {
			log.Warningf("static initializer of %s failed: %v", t.name, res.StaticInitErr)
		}
	}

	r.ctx.metrics.reloadPublished()
	log.Infof("published %s", next.Delta.Summary())
	r.fire(ReloadEvent{Registry: r, Type: t, Version: next, Delta: next.Delta})
	return res, nil
}

// runStaticInit runs the static initializer of v, if it has one.
func (t *ReloadableType) runStaticInit(v *Version) error {
	if v.staticInitBody == nil {
		return nil
	}
	d := newDescriptor(t.name, KindMethod, "<clinit>", MethodSignature(nil, "void"), Static, nil, v.staticInit, v.Seq)
	_, err := callBody(d, v.staticInitBody, nil, nil)
	return err
}

// dropStatics discards static storage of fields whose layout was changed
// under AcceptLayoutChange.
func (t *ReloadableType) dropStatics(violations []LayoutViolation) {
	t.staticsMu.Lock()
	defer t.staticsMu.Unlock()
	for _, v := range violations {
		for key := range t.statics {
			if key.Name == v.Member {
				delete(t.statics, key)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Static storage
// ---------------------------------------------------------------------------

func (t *ReloadableType) getStatic(d *MemberDescriptor) Value {
	t.staticsMu.RLock()
	defer t.staticsMu.RUnlock()
	if v, ok := t.statics[d.Key()]; ok {
		return v
	}
	return ZeroValue(d.signature)
}

func (t *ReloadableType) setStatic(d *MemberDescriptor, v Value) {
	t.staticsMu.Lock()
	t.statics[d.Key()] = v
	t.staticsMu.Unlock()
}

// ---------------------------------------------------------------------------
// Hierarchy
// ---------------------------------------------------------------------------

// SuperclassName returns the live version's superclass name ("" for roots).
func (t *ReloadableType) SuperclassName() string {
	return t.CurrentVersion().Superclass
}

// InterfaceNames returns the live version's interface names in declaration order.
func (t *ReloadableType) InterfaceNames() []string {
	return slices.Clone(t.CurrentVersion().Interfaces)
}

// IsInterface reports whether the live version declares an interface.
func (t *ReloadableType) IsInterface() bool {
	return t.CurrentVersion().IsInterface()
}

// Superclass resolves the live superclass through the owning registry chain.
// It returns nil, nil for root types.
func (t *ReloadableType) Superclass() (*ReloadableType, error) {
	name := t.SuperclassName()
	if name == "" {
		return nil, nil
	}
	if s := t.registry.Lookup(name); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s (superclass of %s)", ErrUnknownType, name, t.name)
}

// Interfaces resolves the live interfaces through the owning registry chain.
func (t *ReloadableType) Interfaces() ([]*ReloadableType, error) {
	names := t.CurrentVersion().Interfaces
	out := make([]*ReloadableType, 0, len(names))
	var errs []error
	for _, n := range names {
		if it := t.registry.Lookup(n); it != nil {
			out = append(out, it)
		} else {
			errs = append(errs, fmt.Errorf("%w: %s (interface of %s)", ErrUnknownType, n, t.name))
		}
	}
	return out, errors.Join(errs...)
}

// resolve looks up a hierarchy edge; unresolvable names are treated as absent.
func (t *ReloadableType) resolve(name string) *ReloadableType {
	if name == "" {
		return nil
	}
	return t.registry.Lookup(name)
}

// IsSubtypeOf reports whether t is other, extends it, or implements it,
// using the live version of every type on the way.
func (t *ReloadableType) IsSubtypeOf(other *ReloadableType) bool {
	visited := make(map[*ReloadableType]bool)
	var walk func(c *ReloadableType) bool
	walk = func(c *ReloadableType) bool {
		if c == nil || visited[c] {
			return false
		}
		if c == other {
			return true
		}
		visited[c] = true
		v := c.CurrentVersion()
		for _, n := range v.Interfaces {
			if walk(c.resolve(n)) {
				return true
			}
		}
		return walk(c.resolve(v.Superclass))
	}
	return walk(t)
}

// NewInstance creates an instance without running a constructor.
func (t *ReloadableType) NewInstance() (*Instance, error) {
	v := t.CurrentVersion()
	if v.IsInterface() || v.Modifiers.IsAbstract() {
		return nil, fmt.Errorf("%w: cannot instantiate %s %s", ErrIllegalArgument, v.Modifiers, t.name)
	}
	return newInstance(t), nil
}
