package health

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tordoctor/doctor/internal/checks"
	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/suppression"
	"github.com/tordoctor/doctor/internal/testutil"
	"github.com/tordoctor/doctor/internal/types"
)

type fakeFetcher struct {
	set    *document.Set
	issues []issue.Issue
}

func (f *fakeFetcher) FetchAll(context.Context) (*document.Set, []issue.Issue) {
	return f.set, f.issues
}

type recordingSender struct {
	err  error
	sent []notifier.Message
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(_ context.Context, msg notifier.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeProber struct{ issues []issue.Issue }

func (p *fakeProber) ProbeORPorts(context.Context, *types.Consensus) []issue.Issue { return p.issues }

type fakeCheck struct {
	issues []issue.Issue
	calls  int
}

func (c *fakeCheck) Check(context.Context) []issue.Issue {
	c.calls++
	return c.issues
}

type harness struct {
	runner  *Runner
	fetcher *fakeFetcher
	sender  *recordingSender
	manager *suppression.Manager
	store   *suppression.FileStore
	network *testutil.Network
}

func newHarness(t *testing.T, prober Prober) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := directory.Default()
	n := testutil.NewNetwork(reg, directory.DefaultBandwidthAuthorities, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC))
	clock := func() time.Time { return n.Now }

	engine := checks.NewEngine(logger)
	engine.SetClock(clock)
	env := checks.Env{
		Registry:             reg,
		BandwidthAuthorities: directory.DefaultBandwidthAuthorities,
		Excluded:             directory.DefaultExcluded,
		KnownParams:          []string{"bwweightscale", "CircuitPriorityHalflifeMsec"},
	}
	require.NoError(t, checks.Register(engine, env, nil))

	store, err := suppression.OpenFileStore(filepath.Join(t.TempDir(), "last_notified.yaml"), logger)
	require.NoError(t, err)
	renderer := issue.NewRenderer(issue.DefaultMessages(), logger)
	contacts := directory.NewContacts(map[string]string{"moria1": "arma@example.org"}, nil)
	manager := suppression.NewManager(store, renderer, issue.NewDurations(nil), contacts, logger)
	manager.SetClock(clock)

	sender := &recordingSender{}
	opts := notifier.DefaultDispatcherOptions()
	opts.Senders = []notifier.Sender{sender}
	dispatcher := notifier.NewDispatcher(logger, manager, notifier.NewRouter(renderer, manager), opts)

	fetcher := &fakeFetcher{set: n.Set()}
	runner := NewRunner(logger, fetcher, engine, prober, dispatcher, manager)
	return &harness{runner: runner, fetcher: fetcher, sender: sender, manager: manager, store: store, network: n}
}

func clockSkew(authority string) issue.Issue {
	return issue.MustNew(types.SeverityNotice, issue.ClockSkew, issue.Params{"authority": authority, "difference": "42"}, authority)
}

func TestRunOnce_HealthyNetwork(t *testing.T) {
	h := newHarness(t, nil)
	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifier.OutcomeNoIssues, report.Outcome)
	assert.Empty(t, report.Issues)
	assert.Empty(t, h.sender.sent)
}

func TestRunOnce_NotifiesThenSuppresses(t *testing.T) {
	h := newHarness(t, nil)
	h.fetcher.issues = []issue.Issue{clockSkew("moria1")}

	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifier.OutcomeNotified, report.Outcome)
	require.Len(t, report.Issues, 1)
	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, []string{"arma@example.org"}, h.sender.sent[0].CC)

	// The record was persisted.
	reopened, err := suppression.OpenFileStore(h.store.Path(), zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, reopened.Keys(), 1)

	// A different magnitude still maps to the same key.
	h.fetcher.issues = []issue.Issue{issue.MustNew(types.SeverityNotice, issue.ClockSkew,
		issue.Params{"authority": "moria1", "difference": "97"}, "moria1")}
	report, err = h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifier.OutcomeAllSuppressed, report.Outcome)
	assert.Len(t, report.Suppressed, 1)
	assert.Len(t, h.sender.sent, 2)
}

func TestRunOnce_SkipsChecksWithoutVotes(t *testing.T) {
	h := newHarness(t, &fakeProber{issues: []issue.Issue{
		issue.MustNew(types.SeverityWarning, issue.UnableToReachORPort,
			issue.Params{"authority": "moria1", "address": "128.31.0.34", "port": "9101", "error": "refused"}, "moria1"),
	}})
	h.fetcher.set = document.NewSet(h.network.Consensuses, nil)

	core, logs := observer.New(zapcore.WarnLevel)
	h.runner.logger = zap.New(core)

	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifier.OutcomeNoIssues, report.Outcome)
	assert.Equal(t, 1, logs.FilterMessage("Unable to retrieve any votes, skipping checks").Len())
}

func TestRunOnce_ProbesWhenComplete(t *testing.T) {
	unreachable := issue.MustNew(types.SeverityWarning, issue.UnableToReachORPort,
		issue.Params{"authority": "moria1", "address": "128.31.0.34", "port": "9101", "error": "refused"}, "moria1")
	h := newHarness(t, &fakeProber{issues: []issue.Issue{unreachable}})

	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifier.OutcomeNotified, report.Outcome)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, issue.UnableToReachORPort, report.Issues[0].Template())
}

func TestRunOnce_SendFailureDoesNotPersist(t *testing.T) {
	h := newHarness(t, nil)
	h.sender.err = errors.New("relay down")
	h.fetcher.issues = []issue.Issue{clockSkew("moria1")}

	_, err := h.runner.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")

	reopened, err := suppression.OpenFileStore(h.store.Path(), zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, reopened.Keys())
}

func TestRunOnce_Duration(t *testing.T) {
	h := newHarness(t, nil)
	ticks := []time.Time{
		time.Date(2024, 5, 1, 3, 10, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 3, 10, 4, 0, time.UTC),
	}
	h.runner.SetClock(func() time.Time {
		now := ticks[0]
		ticks = ticks[1:]
		return now
	})
	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, report.Duration)
}

func TestRunOnce_SuppressedIssueIsNotResentOrRecorded(t *testing.T) {
	h := newHarness(t, nil)
	skew := clockSkew("moria1")
	h.fetcher.issues = []issue.Issue{skew}
	_, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)

	key := h.manager.Key(skew)
	first, ok := h.store.Get(key)
	require.True(t, ok)

	later := h.network.Now.Add(time.Hour)
	h.manager.SetClock(func() time.Time { return later })
	h.fetcher.issues = []issue.Issue{skew, issue.MustNew(types.SeverityWarning, issue.UnableToReachORPort,
		issue.Params{"authority": "gabelmoo", "address": "131.188.40.189", "port": "443", "error": "refused"}, "gabelmoo")}

	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notifier.OutcomeNotified, report.Outcome)
	require.Len(t, report.Suppressed, 1)

	require.Len(t, h.sender.sent, 4)
	detailed := h.sender.sent[2]
	assert.Empty(t, detailed.CC)
	assert.NotContains(t, detailed.Body, "moria1")
	assert.Contains(t, detailed.Body, "WARNING: ")

	got, ok := h.store.Get(key)
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestRunOnce_ExtraChecks(t *testing.T) {
	h := newHarness(t, nil)
	legacy := &fakeCheck{issues: []issue.Issue{issue.MustNew(types.SeverityWarning, issue.LegacyAddressUnavailable,
		issue.Params{"authority": "moria1", "address": "18.244.0.188", "error": "connection refused"}, "moria1")}}
	h.runner.AddCheck(legacy)

	report, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, legacy.calls)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, issue.LegacyAddressUnavailable, report.Issues[0].Template())
	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, []string{"arma@example.org"}, h.sender.sent[0].CC)

	// Extra checks are skipped together with the rules.
	h.fetcher.set = document.NewSet(h.network.Consensuses, nil)
	_, err = h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, legacy.calls)
}
