package suppression

import (
	"time"

	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

// Grace pads every suppression window so that hourly runs landing just after
// a window boundary do not fire again.
const Grace = 30 * time.Minute

// Manager decides whether an issue was notified recently enough to stay
// quiet, and records notifications.
type Manager struct {
	store     Store
	renderer  *issue.Renderer
	durations issue.Durations
	contacts  *directory.Contacts
	clock     func() time.Time
	logger    *zap.Logger
}

// NewManager creates a Manager over store. contacts may be nil when no
// authority has contact information.
func NewManager(store Store, renderer *issue.Renderer, durations issue.Durations, contacts *directory.Contacts, logger *zap.Logger) *Manager {
	if contacts == nil {
		contacts = directory.NewContacts(nil, nil)
	}
	return &Manager{
		store:     store,
		renderer:  renderer,
		durations: durations,
		contacts:  contacts,
		clock:     time.Now,
		logger:    logger.Named("suppression"),
	}
}

// SetClock overrides the time source (for testing).
func (m *Manager) SetClock(clock func() time.Time) {
	m.clock = clock
}

// Key returns the issue's suppression key.
func (m *Manager) Key(i issue.Issue) string {
	return m.renderer.SuppressionKey(i)
}

// Remaining is how much longer the issue stays suppressed. Zero means it is
// not suppressed.
func (m *Manager) Remaining(i issue.Issue) time.Duration {
	d := m.durations.For(i)
	if d == 0 {
		return 0
	}
	last, ok := m.store.Get(m.Key(i))
	if !ok {
		return 0
	}
	remaining := d + Grace - m.clock().Sub(time.Unix(last, 0))
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// ShouldSuppress reports whether the issue was notified within its
// suppression window. Issues with a zero duration are never suppressed.
func (m *Manager) ShouldSuppress(i issue.Issue) bool {
	remaining := m.Remaining(i)
	if remaining == 0 {
		return false
	}
	m.logger.Info("Suppressing issue",
		zap.String("key", m.Key(i)),
		zap.Int("hours_remaining", int(remaining/time.Hour)+1),
	)
	return true
}

// RateLimitNotice records that the issue is being notified now. Issues with a
// zero duration are not recorded.
func (m *Manager) RateLimitNotice(i issue.Issue) {
	if m.durations.For(i) == 0 {
		return
	}
	m.store.Set(m.Key(i), m.clock().Unix())
}

// Filter splits issues into those to report and those still suppressed,
// preserving order.
func (m *Manager) Filter(issues []issue.Issue) (surviving, suppressed []issue.Issue) {
	for _, i := range issues {
		if m.ShouldSuppress(i) {
			suppressed = append(suppressed, i)
		} else {
			surviving = append(surviving, i)
		}
	}
	return surviving, suppressed
}

// Destinations maps every authority the issue concerns to its contact. An
// authority without contact information maps to nil.
func (m *Manager) Destinations(i issue.Issue) map[string]*types.Destination {
	return m.contacts.Destinations(i.To())
}

// Prune drops records older than the longest possible suppression window and
// returns how many were removed.
func (m *Manager) Prune() int {
	cutoff := m.clock().Add(-(m.durations.Longest() + Grace)).Unix()
	removed := 0
	for _, key := range m.store.Keys() {
		if ts, ok := m.store.Get(key); ok && ts < cutoff {
			m.store.Delete(key)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("Pruned expired suppression records", zap.Int("removed", removed))
	}
	return removed
}

// Save persists the store.
func (m *Manager) Save() error {
	return m.store.Save()
}
