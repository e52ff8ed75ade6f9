package reload

import (
	"slices"
	"time"
)

// Version is one historical snapshot of a reloadable type. It is fully
// built before it is published and never mutated afterwards.
type Version struct {
	Seq         int       // 0 for the original image
	Epoch       uint64    // context-wide publication order
	Timestamp   time.Time // wall-clock publication time
	Digest      uint64    // xxh3 of the image bytes
	Superclass  string
	Interfaces  []string
	Modifiers   Modifiers
	Annotations []string
	Members     *MemberSet
	Delta       *TypeDelta // nil until computed; From is -1 for the original

	typeName       string
	staticInit     string
	staticInitBody Body
	bodies         map[MemberKey]Body // methods and constructors
}

// buildVersion creates an unpublished version from a decoded image and
// links its bodies.
func buildVersion(img *TypeImage, data []byte, seq int, linker Linker) (*Version, error) {
	v := &Version{
		Seq:         seq,
		Digest:      ImageDigest(data),
		Superclass:  img.Superclass,
		Interfaces:  slices.Clone(img.Interfaces),
		Modifiers:   img.Modifiers,
		Annotations: slices.Clone(img.Annotations),
		Members:     img.Members(seq),
		typeName:    img.Name,
		staticInit:  img.StaticInit,
		bodies:      make(map[MemberKey]Body),
	}

	for _, kind := range []Kind{KindMethod, KindConstructor} {
		for _, d := range v.Members.tables[kind].order {
			if d.impl == "" {
				continue
			}
			body, err := linker.Link(img.Name, d.impl)
			if err != nil {
				return nil, err
			}
			v.bodies[d.Key()] = body
		}
	}
	if img.StaticInit != "" {
		body, err := linker.Link(img.Name, img.StaticInit)
		if err != nil {
			return nil, err
		}
		v.staticInitBody = body
	}
	return v, nil
}

// Body returns the linked body of a method or constructor.
func (v *Version) Body(key MemberKey) (Body, bool) {
	b, ok := v.bodies[key]
	return b, ok
}

// TypeName returns the name of the type this version belongs to.
func (v *Version) TypeName() string { return v.typeName }

// IsInterface reports whether this version declares an interface.
func (v *Version) IsInterface() bool { return v.Modifiers.IsInterface() }

// HasStaticInit reports whether this version carries a static initializer.
func (v *Version) HasStaticInit() bool { return v.staticInitBody != nil }
