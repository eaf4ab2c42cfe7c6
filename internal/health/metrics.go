package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tordoctor/doctor/internal/types"
)

var (
	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "doctor_last_success_timestamp_seconds",
		Help: "Unix time of the last completed cycle.",
	})
	runDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "doctor_run_duration_seconds",
		Help: "Duration of the last completed cycle.",
	})
	currentIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "doctor_current_issues",
		Help: "Issues found by the last completed cycle by severity.",
	}, []string{"severity"})
)

func observe(r Report) {
	lastSuccess.SetToCurrentTime()
	runDuration.Set(r.Duration.Seconds())
	counts := map[types.Severity]int{}
	for _, i := range r.Issues {
		counts[i.Severity()]++
	}
	for _, s := range []types.Severity{types.SeverityNotice, types.SeverityWarning, types.SeverityError} {
		currentIssues.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
