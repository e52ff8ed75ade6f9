package reload

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// LivenessProbe reports whether the load context behind a registry is
// still alive. It is polled by the Sweeper.
type LivenessProbe func() bool

// TypeRegistry tracks the reloadable types of one load context.
// Names it does not hold are resolved through the parent chain.
type TypeRegistry struct {
	id     string
	name   string
	ctx    *Context
	parent *TypeRegistry

	names      NamePolicy
	staticInit StaticInitPolicy
	linker     Linker
	liveness   LivenessProbe

	mu    sync.RWMutex
	types map[string]*ReloadableType // reloadable
	fixed map[string]*ReloadableType // excluded by policy

	listenersMu sync.RWMutex
	listeners   []ReloadListener

	adds   singleflight.Group
	closed atomic.Bool
}

// RegistryOption configures a TypeRegistry.
type RegistryOption func(*TypeRegistry)

// WithLinker sets the Linker that resolves body references.
func WithLinker(l Linker) RegistryOption {
	return func(r *TypeRegistry) { r.linker = l }
}

// WithNamePolicy sets the policy deciding which names are reloadable.
func WithNamePolicy(p NamePolicy) RegistryOption {
	return func(r *TypeRegistry) { r.names = p }
}

// WithStaticInitPolicy sets the policy deciding static initializer re-runs.
func WithStaticInitPolicy(p StaticInitPolicy) RegistryOption {
	return func(r *TypeRegistry) { r.staticInit = p }
}

// WithLivenessProbe sets the probe the Sweeper polls.
func WithLivenessProbe(p LivenessProbe) RegistryOption {
	return func(r *TypeRegistry) { r.liveness = p }
}

// WithListener registers a listener at construction.
func WithListener(l ReloadListener) RegistryOption {
	return func(r *TypeRegistry) { r.listeners = append(r.listeners, l) }
}

func newTypeRegistry(ctx *Context, name string, parent *TypeRegistry, opts ...RegistryOption) *TypeRegistry {
	r := &TypeRegistry{
		id:         uuid.NewString(),
		name:       name,
		ctx:        ctx,
		parent:     parent,
		names:      AllNamesReloadable,
		staticInit: NeverRerunStaticInit,
		linker:     nopLinker,
		types:      make(map[string]*ReloadableType),
		fixed:      make(map[string]*ReloadableType),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the load context identifier.
func (r *TypeRegistry) ID() string { return r.id }

// Name returns the human-readable registry name.
func (r *TypeRegistry) Name() string { return r.name }

// Parent returns the parent registry, or nil.
func (r *TypeRegistry) Parent() *TypeRegistry { return r.parent }

// Context returns the owning context.
func (r *TypeRegistry) Context() *Context { return r.ctx }

// String implements the Stringer interface.
func (r *TypeRegistry) String() string { return r.name + "#" + r.id }

// IsReloadableTypeName reports whether the name policy allows reloading.
func (r *TypeRegistry) IsReloadableTypeName(name string) bool {
	return r.names.IsReloadableTypeName(name)
}

// AddType records a type the first time it becomes known to the registry.
// It returns nil for names excluded by policy and for annotation types;
// those are still recorded as fixed types so hierarchy walks reach them.
// Adding a name twice returns the type tracked the first time.
func (r *TypeRegistry) AddType(name string, image []byte) (*ReloadableType, error) {
	if r.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrRegistryClosed, r.name)
	}
	if t, ok := r.local(name); ok {
		return t.reloadableOrNil(), nil
	}

	v, err, _ := r.adds.Do(name, func() (any, error) {
		if t, ok := r.local(name); ok {
			return t, nil
		}
		return r.define(name, image)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReloadableType).reloadableOrNil(), nil
}

func (r *TypeRegistry) define(name string, image []byte) (*ReloadableType, error) {
	log := r.ctx.logger("registry")

	img, err := DecodeImage(image)
	if err == nil && img.Name != name {
		err = &ParseError{Type: name, Err: fmt.Errorf("%w: image declares %q", ErrCorruptData, img.Name)}
	}
	if err != nil {
		log.Warningf("add %s to %s failed: %v", name, r.name, err)
		return nil, err
	}

	fixed := img.IsAnnotation() || !r.IsReloadableTypeName(name)
	t, err := newReloadableType(r, img, image, fixed)
	if err != nil {
		log.Warningf("add %s to %s failed: %v", name, r.name, err)
		return nil, err
	}

	r.mu.Lock()
	if fixed {
		r.fixed[name] = t
	} else {
		r.types[name] = t
	}
	r.mu.Unlock()
	r.ctx.invalidateLookups()

	v0 := t.CurrentVersion()
	if err := t.runStaticInit(v0); err != nil {
		log.Warningf("static initializer of %s failed: %v", name, err)
	}

	r.ctx.metrics.typeAdded(fixed)
	if fixed {
		log.Debugf("recorded %s in %s as fixed", name, r.name)
	} else {
		log.Infof("tracking %s in %s (%d members)", name, r.name, v0.Members.Count())
	}
	r.fire(ReloadEvent{Registry: r, Type: t, Version: v0, Delta: v0.Delta})
	return t, nil
}

func (t *ReloadableType) reloadableOrNil() *ReloadableType {
	if t.fixed {
		return nil
	}
	return t
}

// local returns a type held by this registry, reloadable or fixed.
func (r *TypeRegistry) local(name string) (*ReloadableType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.types[name]; ok {
		return t, true
	}
	t, ok := r.fixed[name]
	return t, ok
}

// GetReloadableType finds a reloadable type in this registry, then in the
// parent chain.
func (r *TypeRegistry) GetReloadableType(name string) *ReloadableType {
	for cur := r; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		t := cur.types[name]
		cur.mu.RUnlock()
		if t != nil {
			return t
		}
	}
	return nil
}

// Lookup finds any known type, reloadable or fixed, in this registry, then
// in the parent chain.
func (r *TypeRegistry) Lookup(name string) *ReloadableType {
	for cur := r; cur != nil; cur = cur.parent {
		if t, ok := cur.local(name); ok {
			return t
		}
	}
	return nil
}

// LoadNewVersion reloads a tracked type by name.
func (r *TypeRegistry) LoadNewVersion(name string, image []byte, opts ...LoadOption) (*LoadResult, error) {
	t := r.GetReloadableType(name)
	if t == nil {
		if r.Lookup(name) != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotReloadable, name)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t.LoadNewVersion(image, opts...)
}

// Types returns the reloadable types held by this registry, sorted by name.
func (r *TypeRegistry) Types() []*ReloadableType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*ReloadableType, 0, len(r.types))
	for _, t := range r.types {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// Len returns the number of reloadable types held by this registry.
func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// AddListener registers a listener for published versions.
func (r *TypeRegistry) AddListener(l ReloadListener) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

func (r *TypeRegistry) fire(ev ReloadEvent) {
	r.listenersMu.RLock()
	listeners := r.listeners
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l.TypeReloaded(ev)
	}
}

// Closed reports whether the registry has been torn down.
func (r *TypeRegistry) Closed() bool { return r.closed.Load() }

// Alive reports whether the registry is open and its liveness probe, if
// any, still reports the load context alive.
func (r *TypeRegistry) Alive() bool {
	if r.Closed() {
		return false
	}
	return r.liveness == nil || r.liveness()
}

// Close tears down the registry and every registry chained below it.
func (r *TypeRegistry) Close() error {
	_, err := r.ctx.Teardown(r.id)
	return err
}

// close marks the registry closed. Tracked types stay readable for
// invokers that still hold them, but no longer accept new versions.
func (r *TypeRegistry) close() bool {
	return r.closed.CompareAndSwap(false, true)
}
