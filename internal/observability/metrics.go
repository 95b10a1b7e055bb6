package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// claims pipeline.
type Metrics struct {
	EventsPublished *prometheus.CounterVec // labels: event_type, outcome={published,failed,local_only}

	// Outage monitor metrics.
	OutagesScanned  prometheus.Counter
	OutagesMatched  prometheus.Counter
	OutagesResolved prometheus.Counter
	MonitorErrors   prometheus.Counter

	// Threshold evaluator metrics.
	ClaimsFiled        *prometheus.CounterVec // labels: decision={approved,denied}
	DuplicateClaims    prometheus.Counter
	DecisionFallbacks  prometheus.Counter
	EvaluationDuration prometheus.Histogram

	// Payout processor metrics.
	PayoutsProcessed   *prometheus.CounterVec // labels: outcome={completed,failed,skipped}
	SettlementDuration prometheus.Histogram
	NotifierFailures   prometheus.Counter

	WorkerRunning *prometheus.GaugeVec // label: worker
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.EventsPublished,
		m.OutagesScanned,
		m.OutagesMatched,
		m.OutagesResolved,
		m.MonitorErrors,
		m.ClaimsFiled,
		m.DuplicateClaims,
		m.DecisionFallbacks,
		m.EvaluationDuration,
		m.PayoutsProcessed,
		m.SettlementDuration,
		m.NotifierFailures,
		m.WorkerRunning,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "events_published_total",
			Help:      "Event publish attempts by type and outcome.",
		}, []string{"event_type", "outcome"}),
		OutagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "outages_scanned_total",
			Help:      "Active outages examined by the outage monitor.",
		}),
		OutagesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "outages_matched_total",
			Help:      "Outages matched to at least one policy.",
		}),
		OutagesResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "outages_resolved_total",
			Help:      "Outages marked resolved by the resolution monitor.",
		}),
		MonitorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "monitor_errors_total",
			Help:      "Per-outage failures skipped by the monitors.",
		}),
		ClaimsFiled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "claims_filed_total",
			Help:      "Claims created by the threshold evaluator, by decision.",
		}, []string{"decision"}),
		DuplicateClaims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "duplicate_claims_total",
			Help:      "Claim inserts collapsed by the idempotency key.",
		}),
		DecisionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "decision_fallbacks_total",
			Help:      "AI advisor failures resolved by the rule engine.",
		}),
		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "claims_pipeline",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of one per-policy threshold evaluation.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PayoutsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "payouts_processed_total",
			Help:      "Payout attempts by outcome.",
		}, []string{"outcome"}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "claims_pipeline",
			Name:      "settlement_duration_seconds",
			Help:      "Payment gateway settlement round-trip duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		NotifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claims_pipeline",
			Name:      "notifier_failures_total",
			Help:      "Best-effort notification deliveries that failed.",
		}),
		WorkerRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "claims_pipeline",
			Name:      "worker_running",
			Help:      "1 while the named worker loop is active.",
		}, []string{"worker"}),
	}
}
