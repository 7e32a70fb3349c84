// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package metrics exposes cache pass and on-demand activity to
// prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skycache/skycache/core/cache"
)

const metricsNamespace = "skycache"

// Collector is a prometheus.Collector that collects metrics about
// the caching agents.
type Collector struct {
	passDuration    *prometheus.HistogramVec
	passErrors      *prometheus.CounterVec
	keepSize        *prometheus.GaugeVec
	evictions       *prometheus.CounterVec
	onDemandHandled *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		passDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "pass_duration_seconds",
				Help:      "The time taken by one scheduled caching pass.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			}, []string{"agent"},
		),
		passErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "pass_errors_total",
				Help:      "The number of scheduled caching passes that failed.",
			}, []string{"agent"},
		),
		keepSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "keep_size",
				Help:      "The number of keys kept per namespace by the last pass.",
			}, []string{"agent", "namespace"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "evictions_total",
				Help:      "The number of keys evicted per namespace.",
			}, []string{"agent", "namespace"},
		),
		onDemandHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "on_demand_requests_total",
				Help:      "The number of on-demand refresh requests handled.",
			}, []string{"agent", "outcome"},
		),
	}
}

// ObservePass records the duration and the per-namespace result sizes
// of one completed caching pass.
func (c *Collector) ObservePass(agent string, elapsed time.Duration, result *cache.Result) {
	c.passDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
	if result == nil {
		return
	}
	for ns, nsResult := range result.Namespaces {
		c.keepSize.WithLabelValues(agent, ns).Set(float64(len(nsResult.Keep)))
		if n := len(nsResult.Evict); n > 0 {
			c.evictions.WithLabelValues(agent, ns).Add(float64(n))
		}
	}
}

// PassError counts a failed caching pass.
func (c *Collector) PassError(agent string) {
	c.passErrors.WithLabelValues(agent).Inc()
}

// OnDemandHandled counts an on-demand refresh with its outcome, one of
// "refreshed", "evicted" or "unresolved".
func (c *Collector) OnDemandHandled(agent, outcome string) {
	c.onDemandHandled.WithLabelValues(agent, outcome).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.passDuration.Describe(ch)
	c.passErrors.Describe(ch)
	c.keepSize.Describe(ch)
	c.evictions.Describe(ch)
	c.onDemandHandled.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.passDuration.Collect(ch)
	c.passErrors.Collect(ch)
	c.keepSize.Collect(ch)
	c.evictions.Collect(ch)
	c.onDemandHandled.Collect(ch)
}
