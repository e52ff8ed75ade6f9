package reload

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// counterImage declares:
//
//	class Counter {
//	  private long count; public static int created; public String label
//	  public Counter(long start)
//	  public long add(int, int); public String describe(); public void boom()
//	}
func counterImage(f *fixture) *TypeImage {
	f.bodies.Register("Counter.init", func(self *Instance, args []Value) (Value, error) {
		return nil, self.Set("count", args[0])
	})
	f.bodies.Register("Counter.add", func(_ *Instance, args []Value) (Value, error) {
		return args[0].(int64) + args[1].(int64), nil
	})
	f.bodies.Register("Counter.describe", func(self *Instance, _ []Value) (Value, error) {
		n, err := self.Get("count")
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("count=%d", n), nil
	})
	f.bodies.Register("Counter.boom", func(*Instance, []Value) (Value, error) {
		panic("kaboom")
	})
	f.bodies.Register("Counter.fail", func(*Instance, []Value) (Value, error) {
		return nil, errors.New("refused")
	})
	return &TypeImage{
		Name:      "Counter",
		Modifiers: Public,
		Fields: []FieldDef{
			field("count", "long", Private),
			field("created", "int", Public|Static),
			field("label", "String", Public),
		},
		Methods: []MethodDef{
			method("add", "long", Public, "Counter.add", "int", "int"),
			method("describe", "String", Public, "Counter.describe"),
			method("boom", "void", Public, "Counter.boom"),
			method("fail", "void", Public, "Counter.fail"),
		},
		Constructors: []MethodDef{{Params: []string{"long"}, Modifiers: Public, Impl: "Counter.init"}},
	}
}

func lookup(t *testing.T, rt *ReloadableType, kind Kind, name string) Invoker {
	t.Helper()
	inv, err := DeclaredLookup(rt, kind, name)
	if err != nil {
		t.Fatalf("DeclaredLookup(%s): %v", name, err)
	}
	return inv
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestInvokeConstructorAndMethods(t *testing.T) {
	f := newFixture(t)
	rt := f.add(counterImage(f))

	obj, err := lookup(t, rt, KindConstructor, ConstructorName).Invoke(nil, 41)
	if err != nil {
		t.Fatalf("constructor: %v", err)
	}
	inst, ok := obj.(*Instance)
	if !ok || inst.Type() != rt {
		t.Fatalf("constructor returned %T (%v)", obj, obj)
	}

	got, err := lookup(t, rt, KindMethod, "describe").Invoke(inst)
	if err != nil || got != "count=41" {
		t.Errorf("describe = %v, %v; want count=41", got, err)
	}

	got, err = lookup(t, rt, KindMethod, "add").Invoke(inst, 2, int32(3))
	if err != nil || got != int64(5) {
		t.Errorf("add(2, 3) = %v, %v; want 5", got, err)
	}
}

func TestInvokeArgumentChecks(t *testing.T) {
	f := newFixture(t)
	rt := f.add(counterImage(f))
	inst := f.newInstance(rt)
	add := lookup(t, rt, KindMethod, "add")

	tests := []struct {
		name   string
		target Value
		args   []Value
	}{
		{"too few args", inst, []Value{1}},
		{"too many args", inst, []Value{1, 2, 3}},
		{"string for int", inst, []Value{"1", 2}},
		{"float for int", inst, []Value{1.5, 2}},
		{"int overflow", inst, []Value{int64(1) << 40, 2}},
		{"uint64 overflow", inst, []Value{uint64(1) << 63, 2}},
		{"nil target", nil, []Value{1, 2}},
		{"foreign target", "not an instance", []Value{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := add.Invoke(tt.target, tt.args...); !errors.Is(err, ErrIllegalArgument) {
				t.Errorf("Invoke = %v, want ErrIllegalArgument", err)
			}
		})
	}
}

func TestInvokeTargetOfUnrelatedType(t *testing.T) {
	f := newFixture(t)
	rt := f.add(counterImage(f))
	other := f.add(&TypeImage{Name: "Other"})

	_, err := lookup(t, rt, KindMethod, "describe").Invoke(f.newInstance(other))
	if !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("Invoke on unrelated instance = %v, want ErrIllegalArgument", err)
	}
}

func TestInvokeBodyFailures(t *testing.T) {
	f := newFixture(t)
	rt := f.add(counterImage(f))
	inst := f.newInstance(rt)

	for _, name := range []string{"boom", "fail"} {
		_, err := lookup(t, rt, KindMethod, name).Invoke(inst)
		if !errors.Is(err, ErrInvocationFailure) {
			t.Errorf("%s: err = %v, want ErrInvocationFailure", name, err)
		}
		var ie *InvocationError
		if !errors.As(err, &ie) || ie.Member == "" {
			t.Errorf("%s: err %T is not a populated *InvocationError", name, err)
		}
	}
	if got := testutil.ToFloat64(f.ctx.Metrics().Invocations(invokeResultFailure)); got != 2 {
		t.Errorf("failed invocations = %v, want 2", got)
	}
}

func TestInvokeFields(t *testing.T) {
	f := newFixture(t)
	rt := f.add(counterImage(f))
	a, b := f.newInstance(rt), f.newInstance(rt)
	count := lookup(t, rt, KindField, "count")
	label := lookup(t, rt, KindField, "label")
	created := lookup(t, rt, KindField, "created")

	if got, _ := count.Invoke(a); got != int64(0) {
		t.Errorf("unset long field = %v, want 0", got)
	}
	if got, _ := label.Invoke(a); got != nil {
		t.Errorf("unset reference field = %v, want nil", got)
	}

	if _, err := count.Invoke(a, 7); err != nil {
		t.Fatalf("set count: %v", err)
	}
	if got, _ := count.Invoke(a); got != int64(7) {
		t.Errorf("count = %v, want 7", got)
	}
	if got, _ := count.Invoke(b); got != int64(0) {
		t.Errorf("count on other instance = %v, want 0", got)
	}
	if _, err := count.Invoke(a, "seven"); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("set count to string = %v, want ErrIllegalArgument", err)
	}
	if _, err := count.Invoke(a, 1, 2); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("field with two args = %v, want ErrIllegalArgument", err)
	}

	if _, err := created.Invoke(nil, 3); err != nil {
		t.Fatalf("set static: %v", err)
	}
	if got, _ := created.Invoke(nil); got != int64(3) {
		t.Errorf("static created = %v, want 3", got)
	}
}

func TestInvokeFieldSetterRangeChecks(t *testing.T) {
	f := newFixture(t)
	rt := f.add(&TypeImage{
		Name: "Packed",
		Fields: []FieldDef{
			field("b", "byte", Public|Static),
			field("ratio", "float", Public),
		},
	})
	b := lookup(t, rt, KindField, "b")
	ratio := lookup(t, rt, KindField, "ratio")
	inst := f.newInstance(rt)

	if _, err := b.Invoke(nil, int64(100000)); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("set byte to 100000 = %v, want ErrIllegalArgument", err)
	}
	if got, _ := b.Invoke(nil); got != int64(0) {
		t.Errorf("byte after rejected set = %v, want 0", got)
	}
	if _, err := b.Invoke(nil, -5); err != nil {
		t.Errorf("set byte to -5: %v", err)
	}
	if _, err := ratio.Invoke(inst, 0.1); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("set float from float64 = %v, want ErrIllegalArgument", err)
	}
	if _, err := ratio.Invoke(inst, float32(0.5)); err != nil {
		t.Errorf("set float from float32: %v", err)
	}
}

// TestHiddenFieldsHaveSeparateStorage covers a subclass field that hides an
// inherited field with the same name and type.
func TestHiddenFieldsHaveSeparateStorage(t *testing.T) {
	f := newFixture(t)
	base := f.add(&TypeImage{Name: "Base", Fields: []FieldDef{field("x", "int", Public)}})
	derived := f.add(&TypeImage{Name: "Derived", Superclass: "Base", Fields: []FieldDef{field("x", "int", Public)}})
	inst := f.newInstance(derived)

	baseX := lookup(t, base, KindField, "x")
	derivedX := lookup(t, derived, KindField, "x")

	if _, err := baseX.Invoke(inst, 7); err != nil {
		t.Fatalf("set Base.x: %v", err)
	}
	if got, _ := derivedX.Invoke(inst); got != int64(0) {
		t.Errorf("Derived.x = %v, want 0", got)
	}
	if got, _ := inst.Get("x"); got != int64(0) {
		t.Errorf("Get(x) = %v, want Derived.x (0)", got)
	}
	if got, _ := baseX.Invoke(inst); got != int64(7) {
		t.Errorf("Base.x = %v, want 7", got)
	}

	if err := inst.Set("x", 9); err != nil {
		t.Fatalf("Set(x): %v", err)
	}
	if got, _ := derivedX.Invoke(inst); got != int64(9) {
		t.Errorf("Derived.x after Set = %v, want 9", got)
	}
	if got, _ := baseX.Invoke(inst); got != int64(7) {
		t.Errorf("Base.x after Set = %v, want 7", got)
	}
}

func TestInvokeAbstractAndInterfaceDefaults(t *testing.T) {
	f := newFixture(t)
	f.add(&TypeImage{
		Name:      "Greeter",
		Modifiers: Public | Interface | Abstract,
		Methods: []MethodDef{
			method("greet", "String", 0, f.returns("Greeter.greet", "hello")),
			method("name", "String", 0, ""),
		},
	})
	f.add(&TypeImage{Name: "Shape", Modifiers: Public | Abstract})
	impl := f.add(&TypeImage{Name: "Impl", Interfaces: []string{"Greeter"}})
	inst := f.newInstance(impl)

	greet, err := PublicLookup(impl, KindMethod, "greet", "")
	if err != nil {
		t.Fatalf("PublicLookup(greet): %v", err)
	}
	if got, err := greet.Invoke(inst); err != nil || got != "hello" {
		t.Errorf("default greet = %v, %v; want hello", got, err)
	}

	name, err := PublicLookup(impl, KindMethod, "name", "")
	if err != nil {
		t.Fatalf("PublicLookup(name): %v", err)
	}
	if _, err := name.Invoke(inst); !errors.Is(err, ErrAbstractMethod) {
		t.Errorf("abstract name = %v, want ErrAbstractMethod", err)
	}

	if _, err := f.reg.GetReloadableType("Shape").NewInstance(); !errors.Is(err, ErrIllegalArgument) {
		t.Errorf("NewInstance(abstract) = %v, want ErrIllegalArgument", err)
	}
}

// ---------------------------------------------------------------------------
// Version forwarding
// ---------------------------------------------------------------------------

func TestInvokeRemovedMember(t *testing.T) {
	f := newFixture(t)
	img := counterImage(f)
	rt := f.add(img)
	inst := f.newInstance(rt)
	describe := lookup(t, rt, KindMethod, "describe")

	img.Methods = img.Methods[:1]
	f.reload(img)

	_, err := describe.Invoke(inst)
	if !errors.Is(err, ErrMemberNoLongerExists) {
		t.Fatalf("Invoke of removed method = %v, want ErrMemberNoLongerExists", err)
	}
	if describe.Version() != 0 {
		t.Errorf("Version() = %d, want 0", describe.Version())
	}
	if got := testutil.ToFloat64(f.ctx.Metrics().Invocations(invokeResultMemberGone)); got != 1 {
		t.Errorf("member-gone invocations = %v, want 1", got)
	}

	// restoring the member revives the old invoker
	f.reload(counterImage(f))
	if got, err := describe.Invoke(inst); err != nil || got != "count=0" {
		t.Errorf("Invoke after restore = %v, %v; want count=0", got, err)
	}
}

func TestInvokeUsesCurrentBody(t *testing.T) {
	f := newFixture(t)
	img := &TypeImage{Name: "Greeting", Methods: []MethodDef{method("text", "String", Public|Static, f.returns("v1", "hello"))}}
	rt := f.add(img)
	text := lookup(t, rt, KindMethod, "text")

	img.Methods[0].Impl = f.returns("v2", "bonjour")
	f.reload(img)

	if got, err := text.Invoke(nil); err != nil || got != "bonjour" {
		t.Errorf("Invoke = %v, %v; want bonjour", got, err)
	}
	if got := text.Descriptor().Impl(); got != "v1" {
		t.Errorf("Descriptor().Impl() = %q, want the resolve-time v1", got)
	}
}

func TestOriginalInvokerForFixedTypes(t *testing.T) {
	f := newFixture(t, WithNamePolicy(GlobNamePolicy{Exclude: []string{"java.**"}}))
	if rt, err := f.reg.AddType("java.lang.Object", MustEncodeImage(&TypeImage{
		Name:    "java.lang.Object",
		Methods: []MethodDef{method("hashCode", "int", Public, f.returns("Object.hashCode", int64(42)))},
	})); err != nil || rt != nil {
		t.Fatalf("AddType(java.lang.Object) = %v, %v; want nil, nil", rt, err)
	}
	app := f.add(&TypeImage{Name: "app.Thing", Superclass: "java.lang.Object"})

	inv, err := PublicLookup(app, KindMethod, "hashCode", "")
	if err != nil {
		t.Fatalf("PublicLookup(hashCode): %v", err)
	}
	if _, ok := inv.(*originalInvoker); !ok {
		t.Errorf("invoker for fixed type is %T, want *originalInvoker", inv)
	}
	if got, err := inv.Invoke(f.newInstance(app)); err != nil || got != int64(42) {
		t.Errorf("hashCode = %v, %v; want 42", got, err)
	}
	if inv.Type().IsReloadable() {
		t.Error("java.lang.Object reported reloadable")
	}
}

// ---------------------------------------------------------------------------
// Native handles
// ---------------------------------------------------------------------------

func TestNativeHandleIsFreshPerCall(t *testing.T) {
	f := newFixture(t)
	rt := f.add(counterImage(f))
	inst := f.newInstance(rt)
	count := lookup(t, rt, KindField, "count")

	h1 := count.NativeHandle()
	h2 := count.NativeHandle()
	if h1 == h2 {
		t.Fatal("NativeHandle returned the same object twice")
	}

	if _, err := h1.Invoke(inst); !errors.Is(err, ErrIllegalAccess) {
		t.Errorf("private field through handle = %v, want ErrIllegalAccess", err)
	}
	h1.SetAccessible(true)
	if _, err := h1.Invoke(inst, 9); err != nil {
		t.Errorf("accessible handle: %v", err)
	}
	if h2.IsAccessible() {
		t.Error("accessibility leaked to a sibling handle")
	}
	if count.NativeHandle().IsAccessible() {
		t.Error("accessibility leaked to a later handle")
	}
	if got, _ := count.Invoke(inst); got != int64(9) {
		t.Errorf("count = %v, want 9", got)
	}
}

func TestNativeHandleAnnotationsAreIndependent(t *testing.T) {
	f := newFixture(t)
	img := counterImage(f)
	img.Methods[0].Annotations = []string{"Pure"}
	rt := f.add(img)
	add := lookup(t, rt, KindMethod, "add")

	h1 := add.NativeHandle()
	h1.Annotations()[0] = "Mutated"
	if got := add.NativeHandle().Annotations()[0]; got != "Pure" {
		t.Errorf("annotation = %q, want Pure", got)
	}
	if h1.DeclaringType() != "Counter" || h1.Name() != "add" || h1.Kind() != KindMethod {
		t.Errorf("handle = %s", h1)
	}
}
