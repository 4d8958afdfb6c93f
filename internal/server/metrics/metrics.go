// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teamsync"

type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	DeltaRecords    *prometheus.CounterVec
	BatchItems      *prometheus.CounterVec
	Conflicts       *prometheus.CounterVec
	Purged          *prometheus.CounterVec
	MediaServed     *prometheus.CounterVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
		DeltaRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delta_records_total",
			Help:      "Records and tombstones returned by delta queries.",
		}, []string{"kind"}),
		BatchItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch mutation items by outcome.",
		}, []string{"status"}),
		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Mutations rejected by last-writer-wins, by entity type.",
		}, []string{"entity"}),
		Purged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purged_total",
			Help:      "Rows physically removed by the retention worker.",
		}, []string{"kind"}),
		MediaServed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_served_total",
			Help:      "Media responses by mode (variant, original, redirect).",
		}, []string{"mode"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
