package reload

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

type fixture struct {
	t      *testing.T
	ctx    *Context
	reg    *TypeRegistry
	bodies *BodyTable
}

func newFixture(t *testing.T, opts ...RegistryOption) *fixture {
	t.Helper()
	ctx := NewContext()
	bodies := NewBodyTable()
	reg, err := ctx.NewRegistry("app", nil, append([]RegistryOption{WithLinker(bodies)}, opts...)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(ctx.Close)
	return &fixture{t: t, ctx: ctx, reg: reg, bodies: bodies}
}

// add registers img with the fixture registry and fails the test on error.
func (f *fixture) add(img *TypeImage) *ReloadableType {
	f.t.Helper()
	rt, err := f.reg.AddType(img.Name, MustEncodeImage(img))
	if err != nil {
		f.t.Fatalf("AddType(%s): %v", img.Name, err)
	}
	return rt
}

// reload publishes img as the next version and fails the test on error.
func (f *fixture) reload(img *TypeImage, opts ...LoadOption) *LoadResult {
	f.t.Helper()
	res, err := f.reg.LoadNewVersion(img.Name, MustEncodeImage(img), opts...)
	if err != nil {
		f.t.Fatalf("LoadNewVersion(%s): %v", img.Name, err)
	}
	return res
}

// returns registers a body under ref that always returns v.
func (f *fixture) returns(ref string, v Value) string {
	f.bodies.Register(ref, func(*Instance, []Value) (Value, error) { return v, nil })
	return ref
}

func (f *fixture) newInstance(rt *ReloadableType) *Instance {
	f.t.Helper()
	inst, err := rt.NewInstance()
	if err != nil {
		f.t.Fatalf("NewInstance(%s): %v", rt.Name(), err)
	}
	return inst
}

func method(name, ret string, mods Modifiers, impl string, params ...string) MethodDef {
	return MethodDef{Name: name, Params: params, Return: ret, Modifiers: mods, Impl: impl}
}

func field(name, typ string, mods Modifiers) FieldDef {
	return FieldDef{Name: name, Type: typ, Modifiers: mods}
}

func owners(invs []Invoker) map[string]string {
	out := make(map[string]string, len(invs))
	for _, inv := range invs {
		out[inv.Descriptor().Name()] = inv.Type().Name()
	}
	return out
}

func names(invs []Invoker) []string {
	out := make([]string, len(invs))
	for i, inv := range invs {
		out[i] = inv.Descriptor().Name()
	}
	return out
}
