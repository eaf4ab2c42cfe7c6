// Package health runs one audit cycle: fetch, check, suppress, notify and
// persist.
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/types"
)

// Fetcher downloads the cycle's documents. *fetch.Fetcher implements it.
type Fetcher interface {
	FetchAll(ctx context.Context) (*document.Set, []issue.Issue)
}

// Checker runs the rules. *checks.Engine implements it.
type Checker interface {
	Run(ctx context.Context, set *document.Set) []issue.Issue
}

// Prober checks ORPort reachability. *fetch.Prober implements it.
type Prober interface {
	ProbeORPorts(ctx context.Context, latest *types.Consensus) []issue.Issue
}

// ExtraCheck is a network check run alongside the rules.
// *fetch.LegacyCheck implements it.
type ExtraCheck interface {
	Check(ctx context.Context) []issue.Issue
}

// Notifier reports issues. *notifier.Dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, issues []issue.Issue) (notifier.Result, error)
}

// Records persists suppression state. *suppression.Manager implements it.
type Records interface {
	Prune() int
	Save() error
}

// Report summarizes a cycle.
type Report struct {
	Outcome    notifier.Outcome
	Issues     []issue.Issue
	Suppressed []issue.Issue
	Duration   time.Duration
}

// Runner executes audit cycles.
type Runner struct {
	logger   *zap.Logger
	fetcher  Fetcher
	checker  Checker
	prober   Prober
	extra    []ExtraCheck
	notifier Notifier
	records  Records
	clock    func() time.Time
}

// NewRunner creates a Runner. prober may be nil to skip ORPort probing.
func NewRunner(logger *zap.Logger, fetcher Fetcher, checker Checker, prober Prober, n Notifier, records Records) *Runner {
	return &Runner{
		logger:   logger.Named("runner"),
		fetcher:  fetcher,
		checker:  checker,
		prober:   prober,
		notifier: n,
		records:  records,
		clock:    time.Now,
	}
}

// AddCheck registers a check that runs whenever the rules run.
func (r *Runner) AddCheck(c ExtraCheck) {
	r.extra = append(r.extra, c)
}

// SetClock overrides the clock used to time cycles.
func (r *Runner) SetClock(clock func() time.Time) {
	r.clock = clock
}

// RunOnce performs one cycle. An error means suppression records were not
// persisted; the caller should treat the cycle as failed.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	start := r.clock()

	set, issues := r.fetcher.FetchAll(ctx)
	if set != nil && set.Complete() {
		issues = append(issues, r.checker.Run(ctx, set)...)
		if r.prober != nil {
			issues = append(issues, r.prober.ProbeORPorts(ctx, set.Latest)...)
		}
		for _, c := range r.extra {
			issues = append(issues, c.Check(ctx)...)
		}
	} else {
		r.logger.Warn("Unable to retrieve any votes, skipping checks")
	}

	report := Report{Issues: issues}
	res, err := r.notifier.Notify(ctx, issues)
	report.Outcome = res.Outcome
	report.Suppressed = res.Suppressed
	if err != nil {
		return report, fmt.Errorf("notify: %w", err)
	}
	if res.SendErrors != nil {
		r.logger.Warn("Some notification channels failed", zap.Error(res.SendErrors))
	}

	r.records.Prune()
	if err := r.records.Save(); err != nil {
		return report, fmt.Errorf("save suppression records: %w", err)
	}

	report.Duration = r.clock().Sub(start)
	observe(report)
	r.logger.Debug("Checks finished",
		zap.Stringer("outcome", report.Outcome),
		zap.Int("issues", len(report.Issues)),
		zap.Int("suppressed", len(report.Suppressed)),
		zap.Duration("runtime", report.Duration),
	)
	return report, nil
}
