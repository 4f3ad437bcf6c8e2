// Package metrics holds the agent's prometheus collectors. Each Metrics owns
// a private registry so several agents (or tests) can coexist in a process.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retailplus"

type Metrics struct {
	registry *prometheus.Registry

	// Sync metrics
	EntriesCounter  *prometheus.CounterVec
	PendingGauge    prometheus.Gauge
	SyncRunsCounter *prometheus.CounterVec
	SyncDuration    *prometheus.HistogramVec

	// Connectivity metrics
	ProbeCounter   *prometheus.CounterVec
	OnlineGauge    prometheus.Gauge
	ReachableGauge prometheus.Gauge

	// Request metrics
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EntriesCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_entries_total",
				Help:      "Pending entries processed by drains, by outcome",
			},
			[]string{"outcome"},
		),
		PendingGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_pending_entries",
			Help:      "Unsynced entries in the pending-operation queue",
		}),
		SyncRunsCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync cycles by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		SyncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of sync passes by direction",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"direction"},
		),

		ProbeCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_probes_total",
				Help:      "Backend reachability probes by reason",
			},
			[]string{"reason"},
		),
		OnlineGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_online",
			Help:      "1 when the device has network connectivity",
		}),
		ReachableGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_reachable",
			Help:      "1 when the last backend probe succeeded",
		}),

		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Local API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Local API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry exposes the private registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDrain(r domain.DrainResult) {
	if m == nil {
		return
	}
	m.EntriesCounter.WithLabelValues("succeeded").Add(float64(len(r.Succeeded)))
	m.EntriesCounter.WithLabelValues("failed").Add(float64(len(r.Failed)))
	m.EntriesCounter.WithLabelValues("skipped").Add(float64(len(r.Skipped)))
	m.EntriesCounter.WithLabelValues("surfaced").Add(float64(len(r.Surfaced)))
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingGauge.Set(float64(n))
}

func (m *Metrics) ObserveSyncRun(trigger string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(domain.KindOf(err))
	}
	m.SyncRunsCounter.WithLabelValues(trigger, result).Inc()
}

func (m *Metrics) ObserveSyncDuration(direction string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncDuration.WithLabelValues(direction).Observe(d.Seconds())
}

func (m *Metrics) ObserveProbe(r domain.ProbeResult) {
	if m == nil {
		return
	}
	reason := string(r.Reason)
	if r.Reachable {
		reason = "ok"
	}
	m.ProbeCounter.WithLabelValues(reason).Inc()
	m.ReachableGauge.Set(boolValue(r.Reachable))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	m.OnlineGauge.Set(boolValue(online))
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
