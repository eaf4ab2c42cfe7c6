package issue

import (
	"time"

	"github.com/tordoctor/doctor/internal/types"
)

// DefaultDuration is how long an issue of the given severity stays quiet
// after being notified. Errors are never suppressed.
func DefaultDuration(s types.Severity) time.Duration {
	switch s {
	case types.SeverityNotice:
		return 24 * time.Hour
	case types.SeverityWarning:
		return 4 * time.Hour
	default:
		return 0
	}
}

// Durations resolves suppression durations, preferring per-template
// overrides.
type Durations struct {
	overrides map[Template]time.Duration
}

// NewDurations copies the overrides. Negative overrides are treated as zero.
func NewDurations(overrides map[Template]time.Duration) Durations {
	m := make(map[Template]time.Duration, len(overrides))
	for k, v := range overrides {
		if v < 0 {
			v = 0
		}
		m[k] = v
	}
	return Durations{overrides: m}
}

// For returns the suppression duration of the issue. Zero means the issue is
// never suppressed and never recorded.
func (d Durations) For(i Issue) time.Duration {
	if v, ok := d.overrides[i.template]; ok {
		return v
	}
	return DefaultDuration(i.severity)
}

// Longest returns the longest duration any issue can be suppressed for.
func (d Durations) Longest() time.Duration {
	longest := DefaultDuration(types.SeverityNotice)
	for _, v := range d.overrides {
		if v > longest {
			longest = v
		}
	}
	return longest
}
