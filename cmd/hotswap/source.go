package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/hotswap/reload"
)

// typeSource is the TOML authoring format for a type image:
//
//	name = "com.acme.Widget"
//	superclass = "com.acme.Base"
//	modifiers = "public"
//
//	[[field]]
//	name = "count"
//	type = "int"
//	modifiers = "private"
//
//	[[method]]
//	name = "add"
//	params = ["int", "int"]
//	return = "long"
//	modifiers = "public"
//	impl = "Widget.add"
type typeSource struct {
	Name         string         `toml:"name"`
	Superclass   string         `toml:"superclass"`
	Interfaces   []string       `toml:"interfaces"`
	Modifiers    string         `toml:"modifiers"`
	Annotations  []string       `toml:"annotations"`
	StaticInit   string         `toml:"static-init"`
	Fields       []fieldSource  `toml:"field"`
	Methods      []methodSource `toml:"method"`
	Constructors []methodSource `toml:"constructor"`
}

type fieldSource struct {
	Name        string   `toml:"name"`
	Type        string   `toml:"type"`
	Modifiers   string   `toml:"modifiers"`
	Annotations []string `toml:"annotations"`
}

type methodSource struct {
	Name        string   `toml:"name"`
	Params      []string `toml:"params"`
	Return      string   `toml:"return"`
	Modifiers   string   `toml:"modifiers"`
	Annotations []string `toml:"annotations"`
	Impl        string   `toml:"impl"`
}

// parseTypeSource converts TOML type source into a validated image.
func parseTypeSource(data []byte) (*reload.TypeImage, error) {
	var src typeSource
	md, err := toml.Decode(string(data), &src)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	img := &reload.TypeImage{
		Name:        src.Name,
		Superclass:  src.Superclass,
		Interfaces:  src.Interfaces,
		Annotations: src.Annotations,
		StaticInit:  src.StaticInit,
	}
	if img.Modifiers, err = modifiers(src.Modifiers, "type "+src.Name); err != nil {
		return nil, err
	}
	for _, f := range src.Fields {
		mods, err := modifiers(f.Modifiers, "field "+f.Name)
		if err != nil {
			return nil, err
		}
		img.Fields = append(img.Fields, reload.FieldDef{Name: f.Name, Type: f.Type, Modifiers: mods, Annotations: f.Annotations})
	}
	if img.Methods, err = methodDefs(src.Methods, "method"); err != nil {
		return nil, err
	}
	if img.Constructors, err = methodDefs(src.Constructors, "constructor"); err != nil {
		return nil, err
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

func methodDefs(srcs []methodSource, what string) ([]reload.MethodDef, error) {
	var out []reload.MethodDef
	for _, m := range srcs {
		mods, err := modifiers(m.Modifiers, what+" "+m.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, reload.MethodDef{
			Name:        m.Name,
			Params:      m.Params,
			Return:      m.Return,
			Modifiers:   mods,
			Annotations: m.Annotations,
			Impl:        m.Impl,
		})
	}
	return out, nil
}

func modifiers(s, where string) (reload.Modifiers, error) {
	mods, unknown := reload.ParseModifiers(s)
	if len(unknown) > 0 {
		return 0, fmt.Errorf("%s: unknown modifiers %s", where, strings.Join(unknown, ", "))
	}
	return mods, nil
}
