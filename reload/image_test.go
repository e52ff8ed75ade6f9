package reload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/zeebo/xxh3"
)

func sampleImage() *TypeImage {
	return &TypeImage{
		Name:        "com.example.Widget",
		Superclass:  "com.example.Base",
		Interfaces:  []string{"com.example.Named"},
		Modifiers:   Public,
		Annotations: []string{"com.example.Tracked"},
		Fields: []FieldDef{
			field("count", "int", Private),
			field("label", "String", Public),
		},
		Methods: []MethodDef{
			method("name", "String", Public, "Widget.name"),
			method("add", "long", Public, "Widget.add", "int", "int"),
		},
		Constructors: []MethodDef{{Modifiers: Public, Impl: "Widget.init"}},
		StaticInit:   "Widget.clinit",
	}
}

// rawImage frames payload with a valid header and checksum.
func rawImage(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(ImageMagic[:])
	word := make([]byte, 4)
	binary.LittleEndian.PutUint32(word, ImageFormatVersion)
	buf.Write(word)
	binary.LittleEndian.PutUint32(word, 0)
	buf.Write(word)
	binary.LittleEndian.PutUint32(word, uint32(len(payload)))
	buf.Write(word)
	buf.Write(payload)
	sum := make([]byte, 8)
	binary.LittleEndian.PutUint64(sum, xxh3.Hash(payload))
	buf.Write(sum)
	return buf.Bytes()
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func TestImageRoundTrip(t *testing.T) {
	img := sampleImage()
	data, err := EncodeImage(img)
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}

	h, err := ReadImageHeader(data)
	if err != nil {
		t.Fatalf("ReadImageHeader: %v", err)
	}
	if h.Magic != "HSTI" {
		t.Errorf("Magic = %q, want HSTI", h.Magic)
	}
	if h.Version != ImageFormatVersion {
		t.Errorf("Version = %d, want %d", h.Version, ImageFormatVersion)
	}
	if int(h.PayloadLength) != len(data)-ImageHeaderSize-8 {
		t.Errorf("PayloadLength = %d, want %d", h.PayloadLength, len(data)-ImageHeaderSize-8)
	}

	got, err := DecodeImage(data)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if got.Name != img.Name || got.Superclass != img.Superclass || got.StaticInit != img.StaticInit {
		t.Errorf("decoded header fields = %q/%q/%q", got.Name, got.Superclass, got.StaticInit)
	}
	if len(got.Fields) != 2 || len(got.Methods) != 2 || len(got.Constructors) != 1 {
		t.Fatalf("decoded %d fields, %d methods, %d constructors", len(got.Fields), len(got.Methods), len(got.Constructors))
	}
	if sig := got.Methods[1].Signature(); sig != "(int,int)long" {
		t.Errorf("add signature = %q, want (int,int)long", sig)
	}
	if got.Fields[0].Modifiers != Private {
		t.Errorf("count modifiers = %v, want private", got.Fields[0].Modifiers)
	}
}

func TestImageEncodingIsDeterministic(t *testing.T) {
	a := MustEncodeImage(sampleImage())
	b := MustEncodeImage(sampleImage())
	if !bytes.Equal(a, b) {
		t.Fatal("two encodings of the same image differ")
	}
	if ImageDigest(a) != ImageDigest(b) {
		t.Error("digests of identical images differ")
	}

	other := sampleImage()
	other.Methods[0].Impl = "Widget.name2"
	if ImageDigest(a) == ImageDigest(MustEncodeImage(other)) {
		t.Error("digests of different images collide")
	}
}

func TestImageFlags(t *testing.T) {
	data, err := EncodeImageWithFlags(sampleImage(), ImageFlagSynthetic)
	if err != nil {
		t.Fatalf("EncodeImageWithFlags: %v", err)
	}
	h, err := ReadImageHeader(data)
	if err != nil {
		t.Fatalf("ReadImageHeader: %v", err)
	}
	if h.Flags != ImageFlagSynthetic {
		t.Errorf("Flags = %d, want %d", h.Flags, ImageFlagSynthetic)
	}
}

// ---------------------------------------------------------------------------
// Corruption
// ---------------------------------------------------------------------------

func TestDecodeImageErrors(t *testing.T) {
	good := MustEncodeImage(sampleImage())
	mutate := func(fn func(b []byte) []byte) []byte {
		return fn(bytes.Clone(good))
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrCorruptHeader},
		{"short header", good[:10], ErrCorruptHeader},
		{"bad magic", mutate(func(b []byte) []byte { b[0] = 'X'; return b }), ErrInvalidMagic},
		{"future version", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[4:], 2); return b }), ErrVersionMismatch},
		{"truncated", good[:len(good)-1], ErrUnexpectedEOF},
		{"huge length", mutate(func(b []byte) []byte { binary.LittleEndian.PutUint32(b[12:], 1<<30); return b }), ErrUnexpectedEOF},
		{"trailing bytes", append(bytes.Clone(good), 0), ErrCorruptData},
		{"flipped payload", mutate(func(b []byte) []byte { b[ImageHeaderSize+2] ^= 0xff; return b }), ErrChecksumMismatch},
		{"flipped checksum", mutate(func(b []byte) []byte { b[len(b)-1] ^= 0xff; return b }), ErrChecksumMismatch},
		{"not cbor", rawImage([]byte{0xff}), ErrCorruptData},
		{"duplicate map key", rawImage([]byte{0xa2, 0x01, 0x61, 'A', 0x01, 0x61, 'B'}), ErrCorruptData},
		{"empty name", rawImage([]byte{0xa1, 0x01, 0x60}), ErrCorruptData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeImage(tt.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrParseFailure) {
				t.Errorf("error %v does not match ErrParseFailure", err)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error %v does not match %v", err, tt.want)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error %T is not a *ParseError", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestImageValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(img *TypeImage)
	}{
		{"empty name", func(img *TypeImage) { img.Name = "" }},
		{"extends itself", func(img *TypeImage) { img.Superclass = img.Name }},
		{"implements itself", func(img *TypeImage) { img.Interfaces = append(img.Interfaces, img.Name) }},
		{"field without type", func(img *TypeImage) { img.Fields[0].Type = "" }},
		{"duplicate field name", func(img *TypeImage) { img.Fields = append(img.Fields, field("count", "long", 0)) }},
		{"duplicate method", func(img *TypeImage) { img.Methods = append(img.Methods, method("name", "String", 0, "")) }},
		{"method named <init>", func(img *TypeImage) { img.Methods = append(img.Methods, method(ConstructorName, "void", 0, "")) }},
		{"misnamed constructor", func(img *TypeImage) { img.Constructors[0].Name = "make" }},
		{"duplicate constructor", func(img *TypeImage) { img.Constructors = append(img.Constructors, MethodDef{}) }},
		{"interface constructor", func(img *TypeImage) { img.Modifiers |= Interface }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := sampleImage()
			tt.mutate(img)
			if err := img.Validate(); !errors.Is(err, ErrCorruptData) {
				t.Errorf("Validate() = %v, want ErrCorruptData", err)
			}
			if _, err := EncodeImage(img); err == nil {
				t.Error("EncodeImage accepted an invalid image")
			}
		})
	}

	if err := sampleImage().Validate(); err != nil {
		t.Errorf("Validate(sample) = %v, want nil", err)
	}
}

func TestOverloadsAreDistinctMembers(t *testing.T) {
	img := &TypeImage{
		Name: "Overloads",
		Methods: []MethodDef{
			method("f", "void", Public, "", "int"),
			method("f", "void", Public, "", "String"),
		},
	}
	if err := img.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ms := img.Members(0)
	if got := ms.Len(KindMethod); got != 2 {
		t.Fatalf("Len(method) = %d, want 2", got)
	}
	if got := len(ms.ByName(KindMethod, "f")); got != 2 {
		t.Errorf("ByName(f) = %d members, want 2", got)
	}
	first, _ := ms.First(KindMethod, "f")
	if first.Signature() != "(int)void" {
		t.Errorf("First(f) = %s, want (int)void", first.Signature())
	}
}

func TestInterfaceMembersGetImplicitModifiers(t *testing.T) {
	img := &TypeImage{
		Name:      "Shape",
		Modifiers: Public | Interface | Abstract,
		Fields:    []FieldDef{field("SIDES", "int", 0)},
		Methods: []MethodDef{
			method("area", "double", 0, ""),
			method("describe", "String", 0, "Shape.describe"),
			method("unit", "Shape", Static, "Shape.unit"),
			method("helper", "void", Private, "Shape.helper"),
		},
	}
	ms := img.Members(3)

	sides, _ := ms.First(KindField, "SIDES")
	if !sides.Modifiers().Has(Public | Static | Final) {
		t.Errorf("SIDES modifiers = %v, want public static final", sides.Modifiers())
	}

	tests := []struct {
		name string
		want Modifiers
	}{
		{"area", Public | Abstract},
		{"describe", Public | Default},
		{"unit", Public | Static},
		{"helper", Private},
	}
	for _, tt := range tests {
		d, ok := ms.First(KindMethod, tt.name)
		if !ok {
			t.Fatalf("method %s missing", tt.name)
		}
		if d.Modifiers() != tt.want {
			t.Errorf("%s modifiers = %v, want %v", tt.name, d.Modifiers(), tt.want)
		}
		if d.DeclaringVersion() != 3 {
			t.Errorf("%s DeclaringVersion = %d, want 3", tt.name, d.DeclaringVersion())
		}
	}
}
