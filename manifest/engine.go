package manifest

import (
	"fmt"

	"github.com/chazu/hotswap/reload"
)

// NamePolicy returns the reloadable-name policy described by [policy].
func (m *Manifest) NamePolicy() reload.NamePolicy {
	if len(m.Policy.Include) == 0 && len(m.Policy.Exclude) == 0 {
		return reload.AllNamesReloadable
	}
	return reload.GlobNamePolicy{Include: m.Policy.Include, Exclude: m.Policy.Exclude}
}

// StaticInitPolicy returns the static initializer policy described by
// policy.static-init.
func (m *Manifest) StaticInitPolicy() (reload.StaticInitPolicy, error) {
	p, ok := reload.StaticInitPolicyByName(m.Policy.StaticInit)
	if !ok {
		return nil, fmt.Errorf("policy.static-init: unknown mode %q", m.Policy.StaticInit)
	}
	return p, nil
}

// ContextOptions returns the engine context options described by the manifest.
func (m *Manifest) ContextOptions() []reload.ContextOption {
	var opts []reload.ContextOption
	if m.Lookup.CacheSize != nil {
		opts = append(opts, reload.WithLookupCacheSize(*m.Lookup.CacheSize))
	}
	if m.Project.Name != "" {
		opts = append(opts, reload.WithLogName(m.Project.Name))
	}
	return opts
}

// RegistryOptions returns the registry options described by [policy].
func (m *Manifest) RegistryOptions() ([]reload.RegistryOption, error) {
	sip, err := m.StaticInitPolicy()
	if err != nil {
		return nil, err
	}
	return []reload.RegistryOption{
		reload.WithNamePolicy(m.NamePolicy()),
		reload.WithStaticInitPolicy(sip),
	}, nil
}

// LoadOptions returns the per-reload options described by [watch].
func (m *Manifest) LoadOptions() []reload.LoadOption {
	if m.Watch.AcceptLayoutChange {
		return []reload.LoadOption{reload.AcceptLayoutChange()}
	}
	return nil
}
