package reload

import "github.com/prometheus/client_golang/prometheus"

const (
	reloadResultPublished      = "published"
	reloadResultParseFailure   = "parse_failure"
	reloadResultLinkFailure    = "link_failure"
	reloadResultLayoutRejected = "layout_rejected"
)

const (
	invokeResultOK           = "ok"
	invokeResultMemberGone   = "member_no_longer_exists"
	invokeResultFailure      = "failure"
	invokeResultIllegalState = "illegal"
)

// Metrics holds the Prometheus collectors of one Context.
type Metrics struct {
	reloads     *prometheus.CounterVec
	types       *prometheus.GaugeVec
	registries  prometheus.Gauge
	lookups     *prometheus.CounterVec
	cacheHits   prometheus.Counter
	invocations *prometheus.CounterVec
	sweeps      prometheus.Counter
	tornDown    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotswap_reloads_total",
			Help: "Reload attempts by result",
		}, []string{"result"}),
		types: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hotswap_types",
			Help: "Types known to open registries by kind",
		}, []string{"kind"}),
		registries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hotswap_registries",
			Help: "Open type registries",
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotswap_lookups_total",
			Help: "Member lookups by operation and result",
		}, []string{"op", "result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotswap_lookup_cache_hits_total",
			Help: "CollectAllPublicLookup results served from cache",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hotswap_invocations_total",
			Help: "Invoker calls by result",
		}, []string{"result"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotswap_sweeps_total",
			Help: "Registry liveness sweeps",
		}),
		tornDown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hotswap_registries_torn_down_total",
			Help: "Registries torn down by the sweeper",
		}),
	}
	reg.MustRegister(m.reloads, m.types, m.registries, m.lookups, m.cacheHits, m.invocations, m.sweeps, m.tornDown)
	return m
}

func (m *Metrics) reloadPublished() {
	m.reloads.WithLabelValues(reloadResultPublished).Inc()
}

func (m *Metrics) reloadFailed(result string) {
	m.reloads.WithLabelValues(result).Inc()
}

func (m *Metrics) typeAdded(fixed bool) {
	kind := "reloadable"
	if fixed {
		kind = "fixed"
	}
	m.types.WithLabelValues(kind).Inc()
}

func (m *Metrics) typesRemoved(r *TypeRegistry) {
	r.mu.RLock()
	reloadable, fixed := len(r.types), len(r.fixed)
	r.mu.RUnlock()
	m.types.WithLabelValues("reloadable").Sub(float64(reloadable))
	m.types.WithLabelValues("fixed").Sub(float64(fixed))
}

func (m *Metrics) lookup(op string, err error) {
	result := "found"
	if err != nil {
		result = "not_found"
	}
	m.lookups.WithLabelValues(op, result).Inc()
}

func (m *Metrics) invoked(result string) {
	m.invocations.WithLabelValues(result).Inc()
}

// Reloads returns the counter of reload attempts with the given result.
func (m *Metrics) Reloads(result string) prometheus.Counter {
	return m.reloads.WithLabelValues(result)
}

// Invocations returns the counter of invocations with the given result.
func (m *Metrics) Invocations(result string) prometheus.Counter {
	return m.invocations.WithLabelValues(result)
}

// CacheHits returns the lookup cache hit counter.
func (m *Metrics) CacheHits() prometheus.Counter { return m.cacheHits }
