package reload

import (
	"path"
	"strings"
)

// ---------------------------------------------------------------------------
// Name policies: which type names are reloadable
// ---------------------------------------------------------------------------

// NamePolicy decides whether a type name is reloadable. Implementations
// must be pure and must not call back into the registry.
type NamePolicy interface {
	IsReloadableTypeName(name string) bool
}

// NamePolicyFunc adapts a function to the NamePolicy interface.
type NamePolicyFunc func(name string) bool

func (f NamePolicyFunc) IsReloadableTypeName(name string) bool { return f(name) }

// AllNamesReloadable treats every type name as reloadable.
var AllNamesReloadable = NamePolicyFunc(func(string) bool { return true })

// GlobNamePolicy matches dotted type names against include and exclude
// patterns. Each dot-separated segment is matched with path.Match; a "**"
// segment matches any number of segments. Exclusions win. An empty include
// list includes everything.
type GlobNamePolicy struct {
	Include []string
	Exclude []string
}

func (p GlobNamePolicy) IsReloadableTypeName(name string) bool {
	for _, pat := range p.Exclude {
		if MatchTypeName(pat, name) {
			return false
		}
	}
	if len(p.Include) == 0 {
		return true
	}
	for _, pat := range p.Include {
		if MatchTypeName(pat, name) {
			return true
		}
	}
	return false
}

// MatchTypeName reports whether a dotted type name matches a pattern.
func MatchTypeName(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(name, "."))
}

func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		if ok, err := path.Match(pat[0], name[0]); err != nil || !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}

// ---------------------------------------------------------------------------
// Static initializer policies
// ---------------------------------------------------------------------------

// StaticInitPolicy decides whether a type's static initializer runs again
// after a reload. It is called after the new version is published.
type StaticInitPolicy interface {
	ShouldRerunStaticInit(t *ReloadableType, delta *TypeDelta) bool
}

// StaticInitPolicyFunc adapts a function to the StaticInitPolicy interface.
type StaticInitPolicyFunc func(t *ReloadableType, delta *TypeDelta) bool

func (f StaticInitPolicyFunc) ShouldRerunStaticInit(t *ReloadableType, delta *TypeDelta) bool {
	return f(t, delta)
}

var (
	// NeverRerunStaticInit is the default: reloads never re-run initializers.
	NeverRerunStaticInit = StaticInitPolicyFunc(func(*ReloadableType, *TypeDelta) bool { return false })

	// AlwaysRerunStaticInit re-runs the initializer on every reload.
	AlwaysRerunStaticInit = StaticInitPolicyFunc(func(*ReloadableType, *TypeDelta) bool { return true })

	// RerunWhenStaticsChange re-runs the initializer when the reload adds,
	// removes or alters a static field, or replaces the initializer itself.
	RerunWhenStaticsChange = StaticInitPolicyFunc(func(_ *ReloadableType, d *TypeDelta) bool {
		return d.TouchesStatics()
	})
)

// StaticInitPolicyByName maps a configuration word to a policy.
func StaticInitPolicyByName(name string) (StaticInitPolicy, bool) {
	switch name {
	case "", "never":
		return NeverRerunStaticInit, true
	case "always":
		return AlwaysRerunStaticInit, true
	case "on-static-change":
		return RerunWhenStaticsChange, true
	}
	return nil, false
}
