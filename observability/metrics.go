// Package observability exposes the relay's Prometheus collectors.
// Collectors are registered on the Registerer given to NewMetrics so tests
// can use a private registry.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LiveSessions      prometheus.Gauge
	FramesReceived    *prometheus.CounterVec
	FramesSent        *prometheus.CounterVec
	BroadcastFailures prometheus.Counter
	MessagesStored    *prometheus.CounterVec
	Duplicates        prometheus.Counter
	Takeovers         prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotFailures  prometheus.Counter
	WorkerRestarts    *prometheus.CounterVec

	ProcessResident   prometheus.Gauge
	ProcessCPUPercent prometheus.Gauge
	Goroutines        prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_live_sessions",
			Help: "Number of registered TCP sessions",
		}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound frames by request type",
		}, []string{"type"}),
		FramesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_sent_total",
			Help: "Outbound frames by frame type",
		}, []string{"type"}),
		BroadcastFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcast_failures_total",
			Help: "Sessions dropped because a broadcast write failed",
		}),
		MessagesStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_stored_total",
			Help: "Messages appended to the log by kind",
		}, []string{"kind"}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_duplicate_messages_total",
			Help: "Text submissions collapsed by the dedup window",
		}),
		Takeovers: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_session_takeovers_total",
			Help: "Registrations that displaced a live session",
		}),
		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_snapshot_write_duration_seconds",
			Help:    "Duration of full snapshot writes",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_snapshot_failures_total",
			Help: "Snapshot writes that failed",
		}),
		WorkerRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_worker_restarts_total",
			Help: "Supervised worker restarts after an error or a panic",
		}, []string{"worker"}),
		ProcessResident: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_process_resident_bytes",
			Help: "Resident set size of the relay process",
		}),
		ProcessCPUPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_process_cpu_percent",
			Help: "CPU usage of the relay process",
		}),
		Goroutines: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_goroutines",
			Help: "Number of goroutines",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "HTTP requests served by the file bridge",
		}, []string{"method", "path", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration of the file bridge",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}
