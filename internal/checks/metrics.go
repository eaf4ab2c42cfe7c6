package checks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ruleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_check_failures_total",
			Help: "Total rule evaluations that returned an error or panicked.",
		},
		[]string{"rule"},
	)
	ruleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctor_check_duration_seconds",
			Help:    "Duration of individual rule evaluations.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"rule"},
	)
)
