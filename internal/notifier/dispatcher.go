package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

// Outcome is what a dispatch decided.
type Outcome int

const (
	OutcomeNoIssues Outcome = iota
	OutcomeAllSuppressed
	OutcomeNotified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoIssues:
		return "no_issues"
	case OutcomeAllSuppressed:
		return "all_suppressed"
	case OutcomeNotified:
		return "notified"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Suppressor decides which issues were notified too recently and records new
// notifications. suppression.Manager implements it.
type Suppressor interface {
	Filter(issues []issue.Issue) (surviving, suppressed []issue.Issue)
	RateLimitNotice(i issue.Issue)
}

// DispatcherOptions configures the Dispatcher behavior.
type DispatcherOptions struct {
	Subject string // default "Consensus issues"
	// To receives the detailed message alongside the authority contacts.
	To              []string
	AnnounceSubject string // default "Announce or"
	// AnnounceAddress receives the prefixed summary. Empty disables it.
	AnnounceAddress string
	Senders         []Sender
}

// DefaultDispatcherOptions returns the stock subjects and announce address.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		Subject:         "Consensus issues",
		AnnounceSubject: "Announce or",
		AnnounceAddress: "tor-misc@commit.noreply.org",
	}
}

// Result describes one Notify call.
type Result struct {
	Outcome    Outcome
	Suppressed []issue.Issue
	// Plan is set when a notification went out.
	Plan *Plan
	// SendErrors collects failures that did not abort the dispatch.
	SendErrors error
}

// Dispatcher decides whether a cycle's issues warrant a notification and
// sends it through every configured sender.
type Dispatcher struct {
	logger     *zap.Logger
	suppressor Suppressor
	router     *Router
	opts       DispatcherOptions
}

// NewDispatcher creates a Dispatcher. Zero-valued subjects fall back to the
// defaults.
func NewDispatcher(logger *zap.Logger, suppressor Suppressor, router *Router, opts DispatcherOptions) *Dispatcher {
	defaults := DefaultDispatcherOptions()
	if opts.Subject == "" {
		opts.Subject = defaults.Subject
	}
	if opts.AnnounceSubject == "" {
		opts.AnnounceSubject = defaults.AnnounceSubject
	}
	return &Dispatcher{
		logger:     logger.Named("dispatcher"),
		suppressor: suppressor,
		router:     router,
		opts:       opts,
	}
}

// Notify reports the issues that are not suppressed and records each of them
// as notified. Suppressed issues are neither sent nor recorded. Records are
// only written once the detailed message reached at least one sender; if every
// sender fails the error is returned and nothing is recorded.
func (d *Dispatcher) Notify(ctx context.Context, issues []issue.Issue) (Result, error) {
	for _, is := range issues {
		issuesTotal.WithLabelValues(is.Severity().String(), string(is.Template())).Inc()
	}
	if len(issues) == 0 {
		d.logger.Info("No issues found")
		return Result{Outcome: OutcomeNoIssues}, nil
	}

	surviving, suppressed := d.suppressor.Filter(issues)
	suppressedTotal.Add(float64(len(suppressed)))
	if len(surviving) == 0 {
		d.logger.Info(fmt.Sprintf("All %d issues were suppressed. Not sending a notification.", len(issues)))
		return Result{Outcome: OutcomeAllSuppressed, Suppressed: suppressed}, nil
	}

	plan := d.router.Plan(surviving)
	d.logger.Debug("Sending notification for issues",
		zap.String("destinations", strings.Join(plan.Labels, ", ")),
		zap.Int("issues", len(surviving)),
		zap.Int("suppressed", len(suppressed)),
	)

	severity := highestSeverity(surviving)
	detailed := Message{
		Subject:  d.opts.Subject,
		Body:     plan.Body,
		To:       d.opts.To,
		CC:       plan.CC,
		BCC:      plan.BCC,
		Severity: severity,
	}
	delivered, errs := d.broadcast(ctx, detailed)
	if delivered == 0 {
		if errs == nil {
			errs = fmt.Errorf("no senders configured")
		}
		return Result{Outcome: OutcomeNotified, Suppressed: suppressed, Plan: &plan},
			fmt.Errorf("deliver %q: %w", detailed.Subject, errs)
	}

	for _, is := range surviving {
		d.suppressor.RateLimitNotice(is)
	}

	if d.opts.AnnounceAddress != "" {
		_, announceErrs := d.broadcast(ctx, Message{
			Subject:  d.opts.AnnounceSubject,
			Body:     plan.Announce,
			To:       []string{d.opts.AnnounceAddress},
			Severity: severity,
		})
		if announceErrs != nil {
			errs = multierror.Append(errs, announceErrs)
		}
	}

	return Result{Outcome: OutcomeNotified, Suppressed: suppressed, Plan: &plan, SendErrors: errs}, nil
}

// broadcast sends msg through every sender and returns how many succeeded.
func (d *Dispatcher) broadcast(ctx context.Context, msg Message) (int, error) {
	var errs error
	delivered := 0
	for _, s := range d.opts.Senders {
		if err := s.Send(ctx, msg); err != nil {
			d.logger.Warn("Unable to send notification",
				zap.String("sender", s.Name()),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		delivered++
	}
	return delivered, errs
}

func highestSeverity(issues []issue.Issue) types.Severity {
	highest := types.SeverityNotice
	for _, is := range issues {
		if is.Severity() > highest {
			highest = is.Severity()
		}
	}
	return highest
}
