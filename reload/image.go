package reload

import (
	"fmt"
	"slices"
)

// ---------------------------------------------------------------------------
// TypeImage: structural content of one binary type image
// ---------------------------------------------------------------------------

// TypeImage is the decoded payload of a binary type image.
type TypeImage struct {
	Name         string      `cbor:"1,keyasint"`
	Superclass   string      `cbor:"2,keyasint,omitempty"`
	Interfaces   []string    `cbor:"3,keyasint,omitempty"`
	Modifiers    Modifiers   `cbor:"4,keyasint,omitempty"`
	Annotations  []string    `cbor:"5,keyasint,omitempty"`
	Fields       []FieldDef  `cbor:"6,keyasint,omitempty"`
	Methods      []MethodDef `cbor:"7,keyasint,omitempty"`
	Constructors []MethodDef `cbor:"8,keyasint,omitempty"`
	StaticInit   string      `cbor:"9,keyasint,omitempty"` // body reference of the static initializer
}

// FieldDef declares one field.
type FieldDef struct {
	Name        string    `cbor:"1,keyasint"`
	Type        string    `cbor:"2,keyasint"`
	Modifiers   Modifiers `cbor:"3,keyasint,omitempty"`
	Annotations []string  `cbor:"4,keyasint,omitempty"`
}

// MethodDef declares one method or constructor.
type MethodDef struct {
	Name        string    `cbor:"1,keyasint"`
	Params      []string  `cbor:"2,keyasint,omitempty"`
	Return      string    `cbor:"3,keyasint,omitempty"`
	Modifiers   Modifiers `cbor:"4,keyasint,omitempty"`
	Annotations []string  `cbor:"5,keyasint,omitempty"`
	Impl        string    `cbor:"6,keyasint,omitempty"` // body reference resolved by the Linker
}

// Signature returns the method signature string.
func (m MethodDef) Signature() string {
	return MethodSignature(m.Params, m.Return)
}

// IsInterface reports whether the image declares an interface.
func (img *TypeImage) IsInterface() bool { return img.Modifiers.IsInterface() }

// IsAnnotation reports whether the image declares an annotation type.
func (img *TypeImage) IsAnnotation() bool { return img.Modifiers.Has(Annotation) }

// Validate checks the structural rules every image must satisfy.
func (img *TypeImage) Validate() error {
	if img.Name == "" {
		return fmt.Errorf("%w: empty type name", ErrCorruptData)
	}
	if img.Superclass == img.Name {
		return fmt.Errorf("%w: %s extends itself", ErrCorruptData, img.Name)
	}
	if slices.Contains(img.Interfaces, img.Name) {
		return fmt.Errorf("%w: %s implements itself", ErrCorruptData, img.Name)
	}

	fieldNames := make(map[string]bool)
	for _, f := range img.Fields {
		if f.Name == "" || f.Type == "" {
			return fmt.Errorf("%w: field in %s missing name or type", ErrCorruptData, img.Name)
		}
		if fieldNames[f.Name] {
			return fmt.Errorf("%w: duplicate field %s in %s", ErrCorruptData, f.Name, img.Name)
		}
		fieldNames[f.Name] = true
	}

	seen := make(map[MemberKey]bool)
	for _, m := range img.Methods {
		if m.Name == "" {
			return fmt.Errorf("%w: method in %s missing name", ErrCorruptData, img.Name)
		}
		if m.Name == ConstructorName {
			return fmt.Errorf("%w: constructor declared as method in %s", ErrCorruptData, img.Name)
		}
		key := MemberKey{Name: m.Name, Signature: m.Signature()}
		if seen[key] {
			return fmt.Errorf("%w: duplicate method %s in %s", ErrCorruptData, key, img.Name)
		}
		seen[key] = true
	}

	clear(seen)
	for _, c := range img.Constructors {
		if c.Name != "" && c.Name != ConstructorName {
			return fmt.Errorf("%w: constructor %q in %s must be named %s", ErrCorruptData, c.Name, img.Name, ConstructorName)
		}
		key := MemberKey{Name: ConstructorName, Signature: MethodSignature(c.Params, "void")}
		if seen[key] {
			return fmt.Errorf("%w: duplicate constructor %s in %s", ErrCorruptData, key, img.Name)
		}
		seen[key] = true
	}
	if img.IsInterface() && len(img.Constructors) > 0 {
		return fmt.Errorf("%w: interface %s declares constructors", ErrCorruptData, img.Name)
	}
	return nil
}

// Members builds the member set the image declares, stamping every
// descriptor with the given version sequence number.
func (img *TypeImage) Members(version int) *MemberSet {
	s := newMemberSet()
	for _, f := range img.Fields {
		mods := f.Modifiers
		if img.IsInterface() {
			// interface fields are implicitly public static final
			mods |= Public | Static | Final
		}
		s.add(newDescriptor(img.Name, KindField, f.Name, f.Type, mods, f.Annotations, "", version))
	}
	for _, m := range img.Methods {
		mods := m.Modifiers
		if img.IsInterface() && !mods.IsPrivate() {
			mods |= Public
			if m.Impl == "" && !mods.IsStatic() {
				mods |= Abstract
			} else if !mods.IsStatic() {
				mods |= Default
			}
		}
		s.add(newDescriptor(img.Name, KindMethod, m.Name, m.Signature(), mods, m.Annotations, m.Impl, version))
	}
	for _, c := range img.Constructors {
		s.add(newDescriptor(img.Name, KindConstructor, ConstructorName, MethodSignature(c.Params, "void"), c.Modifiers, c.Annotations, c.Impl, version))
	}
	return s
}
