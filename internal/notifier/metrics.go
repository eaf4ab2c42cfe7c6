package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_issues_total",
			Help: "Issues reported to the dispatcher by severity and template.",
		},
		[]string{"severity", "template"},
	)
	suppressedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doctor_issues_suppressed_total",
			Help: "Issues withheld because they were notified recently.",
		},
	)
	sendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_notification_send_total",
			Help: "Notification send attempts by sender and status.",
		},
		[]string{"sender", "status"},
	)
	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doctor_notification_send_duration_seconds",
			Help:    "Duration of a single notification delivery attempt.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"sender", "status"},
	)
)
