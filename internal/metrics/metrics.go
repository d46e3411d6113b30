// Package metrics holds the Prometheus collectors for trades and quote lookups.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the simulator's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TradesTotal   *prometheus.CounterVec
	QuotesTotal   *prometheus.CounterVec
	QuoteDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrade",
			Name:      "trades_total",
			Help:      "Buy and sell requests by method and outcome",
		}, []string{"method", "outcome"}),
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrade",
			Name:      "quote_lookups_total",
			Help:      "Quote provider lookups by outcome",
		}, []string{"outcome"}),
		QuoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "papertrade",
			Name:      "quote_lookup_duration_seconds",
			Help:      "Quote provider round-trip time",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	reg.MustRegister(m.TradesTotal, m.QuotesTotal, m.QuoteDuration)
	return m
}

// Trade records one buy or sell attempt
func (m *Metrics) Trade(method, outcome string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(method, outcome).Inc()
}

// Quote records one provider lookup
func (m *Metrics) Quote(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(outcome).Inc()
	m.QuoteDuration.Observe(took.Seconds())
}
