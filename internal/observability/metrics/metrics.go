package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "cashoffer"

// LeadMetrics exposes counters/histograms for the intake endpoints.
type LeadMetrics struct {
	submissions     *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	conversions     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "submissions_total",
			Help:      "Lead submissions by kind and outcome",
		}, []string{"kind", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter",
		}, []string{"limiter"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "conversions_fired_total",
			Help:      "Conversion events fired by kind",
		}, []string{"kind"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "leads",
			Name:      "submit_duration_seconds",
			Help:      "End to end latency of a lead submission including sync",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissions, m.rateLimited, m.conversions, m.requestDuration)
	return m
}

// ObserveSubmission records one submission. outcome is one of ok, warning,
// invalid, failed.
func (m *LeadMetrics) ObserveSubmission(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *LeadMetrics) ObserveRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *LeadMetrics) ObserveConversion(kind string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(kind).Inc()
}

// SyncMetrics tracks per-target upsert outcomes.
type SyncMetrics struct {
	outcomes *prometheus.CounterVec
	attempts *prometheus.HistogramVec
	latency  *prometheus.HistogramVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "target_outcomes_total",
			Help:      "Upsert outcomes per sync target",
		}, []string{"target", "outcome"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "target_attempts",
			Help:      "Attempts needed per target upsert",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"target"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "target_latency_seconds",
			Help:      "Latency of a target upsert including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomes, m.attempts, m.latency)
	return m
}

// ObserveTarget records one target upsert. outcome is ok, rejected or
// transport.
func (m *SyncMetrics) ObserveTarget(target, outcome string, attempts int, seconds float64) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(target, outcome).Inc()
	m.attempts.WithLabelValues(target).Observe(float64(attempts))
	m.latency.WithLabelValues(target).Observe(seconds)
}
