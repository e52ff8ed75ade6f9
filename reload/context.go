package reload

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tliron/commonlog"
)

// DefaultLookupCacheSize is the number of CollectAllPublicLookup results a
// Context keeps.
const DefaultLookupCacheSize = 512

// Context is the process-wide owner of every TypeRegistry. It is passed
// explicitly to whatever needs it; there is no package-level registry.
type Context struct {
	mu         sync.RWMutex
	registries map[string]*TypeRegistry
	closed     atomic.Bool

	epoch atomic.Uint64
	// lookupGen advances after a change becomes visible to lookups.
	lookupGen atomic.Uint64

	cache   *lru.Cache[collectKey, []Invoker]
	metrics *Metrics
	prom    *prometheus.Registry
	logName string
}

type contextConfig struct {
	cacheSize int
	prom      *prometheus.Registry
	logName   string
}

// ContextOption configures a Context.
type ContextOption func(*contextConfig)

// WithLookupCacheSize sets the lookup cache size. Zero or less disables it.
func WithLookupCacheSize(n int) ContextOption {
	return func(c *contextConfig) { c.cacheSize = n }
}

// WithPrometheusRegistry registers the engine metrics on reg instead of a
// private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) ContextOption {
	return func(c *contextConfig) { c.prom = reg }
}

// WithLogName sets the logger name prefix (default "hotswap").
func WithLogName(name string) ContextOption {
	return func(c *contextConfig) { c.logName = name }
}

// NewContext creates an empty context.
func NewContext(opts ...ContextOption) *Context {
	cfg := contextConfig{cacheSize: DefaultLookupCacheSize, logName: "hotswap"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.prom == nil {
		cfg.prom = prometheus.NewRegistry()
	}

	c := &Context{
		registries: make(map[string]*TypeRegistry),
		metrics:    newMetrics(cfg.prom),
		prom:       cfg.prom,
		logName:    cfg.logName,
	}
	if cfg.cacheSize > 0 {
		cache, err := lru.New[collectKey, []Invoker](cfg.cacheSize)
		if err == nil {
			c.cache = cache
		}
	}
	return c
}

func (c *Context) logger(component string) commonlog.Logger {
	return commonlog.GetLogger(c.logName + "." + component)
}

// Epoch returns the number of versions published in this context so far.
// It grows by one with every publication.
func (c *Context) Epoch() uint64 { return c.epoch.Load() }

func (c *Context) nextEpoch() uint64 { return c.epoch.Add(1) }

// invalidateLookups retires every cached lookup result. Callers invoke it
// only once the change is observable through CurrentVersion or the
// registry maps.
func (c *Context) invalidateLookups() { c.lookupGen.Add(1) }

// Metrics returns the engine metrics of this context.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Gatherer returns the Prometheus registry the metrics are registered on.
func (c *Context) Gatherer() prometheus.Gatherer { return c.prom }

// NewRegistry creates a registry for a new load context. parent may be nil;
// otherwise it must belong to this context and be open.
func (c *Context) NewRegistry(name string, parent *TypeRegistry, opts ...RegistryOption) (*TypeRegistry, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("%w: context closed", ErrRegistryClosed)
	}
	if parent != nil {
		if parent.ctx != c {
			return nil, fmt.Errorf("parent registry %s belongs to another context", parent)
		}
		if parent.Closed() {
			return nil, fmt.Errorf("%w: parent %s", ErrRegistryClosed, parent.name)
		}
	}

	r := newTypeRegistry(c, name, parent, opts...)

	c.mu.Lock()
	c.registries[r.id] = r
	n := len(c.registries)
	c.mu.Unlock()

	c.metrics.registries.Set(float64(n))
	c.logger("registry").Infof("created registry %s", r)
	return r, nil
}

// Registry returns the open registry with the given ID.
func (c *Context) Registry(id string) (*TypeRegistry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.registries[id]
	return r, ok
}

// Registries returns every open registry, sorted by name then ID.
func (c *Context) Registries() []*TypeRegistry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*TypeRegistry, 0, len(c.registries))
	for _, r := range c.registries {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].name == result[j].name {
			return result[i].id < result[j].id
		}
		return result[i].name < result[j].name
	})
	return result
}

// Teardown closes a registry and every registry chained below it.
// It returns the number of registries closed.
func (c *Context) Teardown(id string) (int, error) {
	c.mu.Lock()
	root, ok := c.registries[id]
	if !ok {
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownRegistry, id)
	}

	var doomed []*TypeRegistry
	for _, r := range c.registries {
		for cur := r; cur != nil; cur = cur.parent {
			if cur == root {
				doomed = append(doomed, r)
				break
			}
		}
	}
	for _, r := range doomed {
		delete(c.registries, r.id)
	}
	n := len(c.registries)
	c.mu.Unlock()

	closed := 0
	for _, r := range doomed {
		if r.close() {
			closed++
			c.metrics.typesRemoved(r)
			c.logger("registry").Infof("tore down registry %s", r)
		}
	}
	c.metrics.registries.Set(float64(n))
	c.invalidateLookups()
	if c.cache != nil {
		c.cache.Purge()
	}
	return closed, nil
}

// Close tears down every registry. The context accepts no new registries
// afterwards.
func (c *Context) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	for _, r := range c.Registries() {
		if r.parent == nil {
			_, _ = c.Teardown(r.id)
		}
	}
	// orphans whose parents were torn down earlier
	for _, r := range c.Registries() {
		_, _ = c.Teardown(r.id)
	}
}
