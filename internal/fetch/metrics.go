package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_fetch_total",
			Help: "Document downloads by document type and status.",
		},
		[]string{"document", "status"},
	)
	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctor_fetch_duration_seconds",
			Help:    "Duration of successful document downloads.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"document"},
	)
	orportProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_orport_probe_total",
			Help: "ORPort reachability probes by status.",
		},
		[]string{"status"},
	)
)
