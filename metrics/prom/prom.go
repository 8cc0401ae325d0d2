package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/lrulist/lrulist"
	"github.com/IvanBrykalov/lrulist/lrumap"
)

// Adapter implements lrumap.Metrics (and so lrulist.Metrics) and exports
// Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	acquires   *prometheus.CounterVec
	evicts     *prometheus.CounterVec
	violations *prometheus.CounterVec
	sizeEnt    prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Map lookup hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Map lookup misses",
			ConstLabels: constLabels,
		}),
		acquires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "acquires_total",
				Help:        "LRU node acquisitions by source (none = full)",
				ConstLabels: constLabels,
			},
			[]string{"source"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "LRU evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "violations_total",
				Help:        "Detected LRU misuse by kind",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.acquires, a.evicts, a.violations, a.sizeEnt)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Acquire counts a PopFree by where the node came from.
func (a *Adapter) Acquire(s lrulist.Source) {
	a.acquires.WithLabelValues(s.String()).Inc()
}

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r lrulist.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Violation counts detected misuse.
func (a *Adapter) Violation(v lrulist.Violation) {
	a.violations.WithLabelValues(v.String()).Inc()
}

// Size updates the entry gauge.
func (a *Adapter) Size(entries int) {
	a.sizeEnt.Set(float64(entries))
}

// Compile-time check: ensure Adapter implements lrumap.Metrics.
var _ lrumap.Metrics = (*Adapter)(nil)
