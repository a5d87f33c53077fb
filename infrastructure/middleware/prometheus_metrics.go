// Package middleware provides cross-cutting concerns for the judge panel:
// Prometheus metrics and completion budget enforcement.
package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/pitchpanel/infrastructure/llm"
	"github.com/ahrav/pitchpanel/internal/ports"
)

// unknownLabel replaces missing or empty label values.
const unknownLabel = "unknown"

type counterVec struct {
	vec    *prometheus.CounterVec
	labels []string
}

type gaugeVec struct {
	vec    *prometheus.GaugeVec
	labels []string
}

type histogramVec struct {
	vec    *prometheus.HistogramVec
	labels []string
}

// PrometheusMetrics implements ports.MetricsCollector with Prometheus.
// Every panel metric has a dedicated vector with a fixed label set;
// unrecognised names fall through to generic vectors labelled by metric.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	counters   map[string]counterVec
	gauges     map[string]gaugeVec
	histograms map[string]histogramVec

	latency          *prometheus.HistogramVec
	genericCounter   *prometheus.CounterVec
	genericGauge     *prometheus.GaugeVec
	genericHistogram *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the panel metrics in registry. A nil
// registry creates a private one, so collectors never collide.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	counter := func(name, help string, labels ...string) counterVec {
		return counterVec{
			vec:    factory.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels),
			labels: labels,
		}
	}
	gauge := func(name, help string, labels ...string) gaugeVec {
		return gaugeVec{
			vec:    factory.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels),
			labels: labels,
		}
	}
	histogram := func(name, help string, buckets []float64, labels ...string) histogramVec {
		return histogramVec{
			vec:    factory.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels),
			labels: labels,
		}
	}

	return &PrometheusMetrics{
		registry: registry,
		counters: map[string]counterVec{
			ports.MetricJudgeTurns:          counter(ports.MetricJudgeTurns, "Judge messages appended to the transcript.", "persona", "route"),
			ports.MetricHandoffs:            counter(ports.MetricHandoffs, "Turns handed from one judge to a peer.", "from", "to"),
			ports.MetricClassifierFallbacks: counter(ports.MetricClassifierFallbacks, "Utterances routed to the default judge."),
			ports.MetricLoopErrors:          counter(ports.MetricLoopErrors, "Q&A loops ended by an error.", "category"),
			ports.MetricTranscriptEntries:   counter(ports.MetricTranscriptEntries, "Transcript entries appended.", "speaker_kind"),
			ports.MetricVoiceFailures:       counter(ports.MetricVoiceFailures, "Judge messages that were not spoken.", "reason"),
			ports.MetricEvaluations:         counter(ports.MetricEvaluations, "Independent evaluations by outcome.", "judge", "status"),
			ports.MetricConsensusOutcomes:   counter(ports.MetricConsensusOutcomes, "Category negotiations by outcome.", "outcome"),
			ports.MetricBudgetExceeded:      counter(ports.MetricBudgetExceeded, "Completions rejected by the budget.", "limit_type"),
			llm.MetricRequests:              counter(llm.MetricRequests, "Completion requests by status.", "model", "status"),
			llm.MetricTokens:                counter(llm.MetricTokens, "Completion tokens by direction.", "model", "direction"),
		},
		gauges: map[string]gaugeVec{
			ports.MetricQnAActive:        gauge(ports.MetricQnAActive, "1 while a Q&A loop is running."),
			ports.MetricBudgetTokensUsed: gauge(ports.MetricBudgetTokensUsed, "Tokens consumed against the completion budget."),
			ports.MetricBudgetCallsUsed:  gauge(ports.MetricBudgetCallsUsed, "Calls made against the completion budget."),
		},
		histograms: map[string]histogramVec{
			ports.MetricConsensusRounds: histogram(ports.MetricConsensusRounds, "Negotiation rounds issued per category.", []float64{0, 1, 2, 3, 5, 10}, "category"),
			llm.MetricRequestDuration:   histogram(llm.MetricRequestDuration, "Completion request latency.", prometheus.DefBuckets, "model", "status"),
		},

		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panel_operation_duration_seconds",
			Help:    "Duration of panel operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		genericCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "panel_events_total",
			Help: "Counters without a dedicated metric.",
		}, []string{"metric"}),
		genericGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "panel_state",
			Help: "Gauges without a dedicated metric.",
		}, []string{"metric"}),
		genericHistogram: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "panel_observations",
			Help:    "Histograms without a dedicated metric.",
			Buckets: prometheus.DefBuckets,
		}, []string{"metric"}),
	}
}

// Registry returns the registry the metrics are registered in.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordLatency implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, _ map[string]string) {
	pm.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if c, ok := pm.counters[metric]; ok {
		c.vec.WithLabelValues(labelValues(c.labels, labels)...).Add(value)
		return
	}
	pm.genericCounter.WithLabelValues(metric).Add(value)
}

// RecordGauge implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	if g, ok := pm.gauges[metric]; ok {
		g.vec.WithLabelValues(labelValues(g.labels, labels)...).Set(value)
		return
	}
	pm.genericGauge.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if h, ok := pm.histograms[metric]; ok {
		h.vec.WithLabelValues(labelValues(h.labels, labels)...).Observe(value)
		return
	}
	pm.genericHistogram.WithLabelValues(metric).Observe(value)
}

func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, n := range names {
		v := labels[n]
		if v == "" {
			v = unknownLabel
		}
		values[i] = v
	}
	return values
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
