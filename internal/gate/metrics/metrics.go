package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gate.
type Metrics struct {
	ChecksTotal             prometheus.Counter
	FastPathDenialsTotal    prometheus.Counter
	EscalationsTotal        prometheus.Counter
	ConfirmedFalsePositives prometheus.Counter
	StoreFailuresTotal      prometheus.Counter
	RebuildsTotal           prometheus.Counter
	RebuildFailuresTotal    prometheus.Counter
	SyncErrorsTotal         prometheus.Counter
	FilterItems             prometheus.Gauge
	FilterFalsePositiveRate prometheus.Gauge
	ConfirmDuration         prometheus.Histogram
}

// New creates all gate metrics and registers them on reg. Passing nil
// registers on the default registry; tests pass their own registry so
// repeated construction never collides.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_checks_total",
			Help: "Total number of eligibility checks served",
		}),
		FastPathDenialsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_fast_path_denials_total",
			Help: "Checks denied by the bloom filter without a store lookup",
		}),
		EscalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_escalations_total",
			Help: "Checks escalated to the durable store for confirmation",
		}),
		ConfirmedFalsePositives: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_confirmed_false_positives_total",
			Help: "Escalated checks the store denied (bloom false positives)",
		}),
		StoreFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_store_failures_total",
			Help: "Store confirmation failures or timeouts (gate fails closed)",
		}),
		RebuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_rebuilds_total",
			Help: "Completed full filter rebuilds",
		}),
		RebuildFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_rebuild_failures_total",
			Help: "Aborted filter rebuild passes",
		}),
		SyncErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "allowgate_sync_errors_total",
			Help: "Incremental sync passes that failed and will be retried",
		}),
		FilterItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "allowgate_filter_items",
			Help: "Distinct addresses inserted into the active filter",
		}),
		FilterFalsePositiveRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "allowgate_filter_estimated_false_positive_rate",
			Help: "Estimated false positive rate of the active filter",
		}),
		ConfirmDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "allowgate_store_confirm_duration_seconds",
			Help:    "Latency of store confirmation lookups",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}
