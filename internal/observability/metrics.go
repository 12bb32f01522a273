package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Turns               *prometheus.CounterVec
	ClassifierFallbacks *prometheus.CounterVec
	GuardrailDenials    *prometheus.CounterVec
	QuotesGenerated     prometheus.Counter
	TurnDuration        prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_engine_turns_total",
				Help: "Conversation turns handled, by routed intent",
			},
			[]string{"intent"},
		),
		ClassifierFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_engine_classifier_fallbacks_total",
				Help: "Intent classifications that fell back to the rule classifier",
			},
			[]string{"reason"},
		),
		GuardrailDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sales_engine_guardrail_denials_total",
				Help: "Guardrail checks that denied an answer",
			},
			[]string{"check"},
		),
		QuotesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sales_engine_quotes_generated_total",
				Help: "Quotes persisted at the end of a quote dialogue",
			},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sales_engine_turn_duration_seconds",
				Help:    "Duration of a conversation turn in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Turns, m.ClassifierFallbacks, m.GuardrailDenials, m.QuotesGenerated, m.TurnDuration)
	}
	return m
}

// ObserveTurn records a completed turn.
func (m *Metrics) ObserveTurn(intent string, started time.Time) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(intent).Inc()
	m.TurnDuration.Observe(time.Since(started).Seconds())
}

// Fallback records a classifier fallback.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.ClassifierFallbacks.WithLabelValues(reason).Inc()
}

// Denied records a guardrail denial.
func (m *Metrics) Denied(check string) {
	if m == nil {
		return
	}
	m.GuardrailDenials.WithLabelValues(check).Inc()
}

// QuoteGenerated records a persisted quote.
func (m *Metrics) QuoteGenerated() {
	if m == nil {
		return
	}
	m.QuotesGenerated.Inc()
}
