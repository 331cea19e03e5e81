// Package metrics exposes Prometheus metrics for profile aggregation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultReady     = "ready"
	ResultFailed    = "failed"
	ResultDiscarded = "discarded"
)

// FetchRecorder is what the profile tracker reports to.
type FetchRecorder interface {
	RecordProfileFetch(result string, d time.Duration)
}

// Collector is the Prometheus implementation of FetchRecorder.
type Collector struct {
	fetchTotal    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

// NewCollector builds a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_fetch_total",
			Help: "Profile aggregation fetches by outcome.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "profile_fetch_duration_seconds",
			Help:    "Time from dispatch until both profile halves resolved.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(c.fetchTotal, c.fetchDuration)
	return c
}

func (c *Collector) RecordProfileFetch(result string, d time.Duration) {
	c.fetchTotal.WithLabelValues(result).Inc()
	c.fetchDuration.Observe(d.Seconds())
}

// Nop drops every measurement.
type Nop struct{}

func (Nop) RecordProfileFetch(string, time.Duration) {}

// Handler serves the gatherer for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
