// Package manifest handles hotswap.toml engine configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "hotswap.toml"

// Defaults applied by Load when a key is absent.
const (
	DefaultWatchDir     = "images"
	DefaultPollInterval = "2s"
	DefaultRegistry     = "app"
)

// Manifest represents a hotswap.toml configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Policy  Policy  `toml:"policy"`
	Lookup  Lookup  `toml:"lookup"`
	Watch   Watch   `toml:"watch"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the hotswap.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Policy configures which types are reloadable and how reloads treat
// static initializers.
type Policy struct {
	Include    []string `toml:"include"`
	Exclude    []string `toml:"exclude"`
	StaticInit string   `toml:"static-init"`
}

// Lookup configures the member lookup cache.
type Lookup struct {
	// CacheSize is the number of cached collect-all results; 0 disables
	// the cache. Nil means the engine default.
	CacheSize *int `toml:"cache-size"`
}

// Watch configures the image directory watcher.
type Watch struct {
	Dirs               []string `toml:"dirs"`
	Interval           string   `toml:"interval"`
	AcceptLayoutChange bool     `toml:"accept-layout-change"`
	Registry           string   `toml:"registry"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses a hotswap.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse validates and decodes hotswap.toml content and applies defaults.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Defaults
	if len(m.Watch.Dirs) == 0 {
		m.Watch.Dirs = []string{DefaultWatchDir}
	}
	if m.Watch.Interval == "" {
		m.Watch.Interval = DefaultPollInterval
	}
	if m.Watch.Registry == "" {
		m.Watch.Registry = DefaultRegistry
		if m.Project.Name != "" {
			m.Watch.Registry = m.Project.Name
		}
	}
	if m.Policy.StaticInit == "" {
		m.Policy.StaticInit = "never"
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a hotswap.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// WatchDirPaths returns absolute paths for the configured image directories.
func (m *Manifest) WatchDirPaths() []string {
	var paths []string
	for _, d := range m.Watch.Dirs {
		if filepath.IsAbs(d) {
			paths = append(paths, d)
			continue
		}
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// PollInterval returns the parsed watch interval.
func (m *Manifest) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(m.Watch.Interval)
	if err != nil {
		return 0, fmt.Errorf("watch.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("watch.interval: must be positive, got %s", d)
	}
	return d, nil
}

func (m *Manifest) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || m.Dir == "" {
		return path
	}
	return filepath.Join(m.Dir, path)
}

// LogFile returns the configured log file, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.resolve(m.Log.File)
	return &path
}
