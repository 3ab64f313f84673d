package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shipyard"

var (
	// DeploymentsTotal counts finished deployment runs.
	// status is "success" or "failed".
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Total number of finished deployment runs by type and status",
		},
		[]string{"deploy_type", "status"},
	)

	DeploymentsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deployments_running",
			Help:      "Number of deployment runs currently in progress",
		},
	)

	// StageDurationSeconds tracks per-stage wall time. result is success, failed or skipped.
	StageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "result"},
	)

	BuildsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "active",
			Help:      "Number of supervised build processes currently running",
		},
	)

	// BuildDurationSeconds tracks supervised process runs.
	// outcome: success | failed | timeout | stopped
	BuildDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Duration of supervised build commands in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase", "outcome"},
	)

	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ssh",
			Name:      "sessions_open",
			Help:      "Number of cached SSH sessions",
		},
	)

	// SessionEventsTotal counts session lifecycle events.
	// event: created | reused | probe_failed | evicted | dial_failed
	SessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssh",
			Name:      "session_events_total",
			Help:      "SSH session lifecycle events",
		},
		[]string{"event"},
	)

	UploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "uploaded_bytes_total",
			Help:      "Bytes uploaded to remote hosts",
		},
	)

	UploadedFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "uploaded_files_total",
			Help:      "Files uploaded to remote hosts",
		},
	)
)
