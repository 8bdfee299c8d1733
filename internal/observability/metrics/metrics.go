package metrics

import "github.com/prometheus/client_golang/prometheus"

// FunnelMetrics exposes counters/histograms for the intake funnel.
type FunnelMetrics struct {
	sessionsCreated prometheus.Counter
	stepAdvances    *prometheus.CounterVec
	calculations    *prometheus.CounterVec
	downloads       *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
}

func NewFunnelMetrics(reg prometheus.Registerer) *FunnelMetrics {
	m := &FunnelMetrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solarfunnel",
			Subsystem: "funnel",
			Name:      "sessions_created_total",
			Help:      "Total funnel sessions created",
		}),
		stepAdvances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarfunnel",
			Subsystem: "funnel",
			Name:      "step_advances_total",
			Help:      "Wizard step advance attempts",
		}, []string{"step", "outcome"}),
		calculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarfunnel",
			Subsystem: "calculation",
			Name:      "runs_total",
			Help:      "Calculation orchestrations by outcome",
		}, []string{"outcome"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solarfunnel",
			Subsystem: "results",
			Name:      "downloads_total",
			Help:      "PDF/devis downloads by kind and outcome",
		}, []string{"kind", "outcome"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solarfunnel",
			Subsystem: "backend",
			Name:      "request_seconds",
			Help:      "Latency of calculation backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsCreated, m.stepAdvances, m.calculations, m.downloads, m.backendLatency)
	return m
}

func (m *FunnelMetrics) ObserveSessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}

func (m *FunnelMetrics) ObserveStepAdvance(step, outcome string) {
	if m == nil {
		return
	}
	m.stepAdvances.WithLabelValues(step, outcome).Inc()
}

func (m *FunnelMetrics) ObserveCalculation(outcome string) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(outcome).Inc()
}

func (m *FunnelMetrics) ObserveDownload(kind, outcome string) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(kind, outcome).Inc()
}

func (m *FunnelMetrics) ObserveBackendLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}
