package checks

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

// Engine runs an ordered list of rules against a document snapshot.
// Rules must be registered before Run is called (not concurrent with RegisterRule).
type Engine struct {
	logger      *zap.Logger
	rules       []Rule
	clock       func() time.Time
	parallelism int
}

// NewEngine creates an Engine with no rules. Rules run sequentially unless
// SetParallelism is called.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logger:      logger.Named("checks"),
		clock:       time.Now,
		parallelism: 1,
	}
}

// SetClock overrides the time source. Must be called before Run (not concurrent).
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// SetParallelism sets how many rules may evaluate at once. Output order is
// the registration order regardless.
func (e *Engine) SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	e.parallelism = n
}

// RegisterRule adds a rule. Must be called before Run (not concurrent).
func (e *Engine) RegisterRule(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Run evaluates every rule and concatenates their issues in registration
// order. A rule that fails or panics contributes a single CHECK_FAILED issue
// and never affects its siblings. Rules not yet started when ctx is cancelled
// are skipped.
func (e *Engine) Run(ctx context.Context, set *document.Set) []issue.Issue {
	if set == nil || set.Latest == nil {
		e.logger.Warn("No consensus available, skipping checks")
		return nil
	}
	in := &Input{
		Latest:      set.Latest,
		Consensuses: set.Consensuses,
		Votes:       set.Votes,
		Now:         e.clock().UTC(),
	}

	results := make([][]issue.Issue, len(e.rules))
	g := new(errgroup.Group)
	g.SetLimit(e.parallelism)
	for i, rule := range e.rules {
		i, rule := i, rule
		if ctx.Err() != nil {
			e.logger.Warn("Check cycle cancelled, skipping remaining rules",
				zap.String("rule", rule.Name()),
				zap.Error(ctx.Err()),
			)
			break
		}
		g.Go(func() error {
			results[i] = e.evaluate(rule, in)
			return nil
		})
	}
	_ = g.Wait()

	var all []issue.Issue
	for _, issues := range results {
		for _, is := range issues {
			e.logger.Debug("Issue found", zap.Stringer("issue", is))
			all = append(all, is)
		}
	}
	return all
}

func (e *Engine) evaluate(rule Rule, in *Input) (issues []issue.Issue) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Rule panicked",
				zap.String("rule", rule.Name()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			issues = []issue.Issue{checkFailed(rule, fmt.Errorf("panic: %v", r))}
		}
		ruleDuration.WithLabelValues(rule.Name()).Observe(time.Since(start).Seconds())
	}()

	found, err := rule.Evaluate(in)
	if err != nil {
		e.logger.Warn("Rule evaluation failed",
			zap.String("rule", rule.Name()),
			zap.Error(err),
		)
		return []issue.Issue{checkFailed(rule, err)}
	}
	return found
}

func checkFailed(rule Rule, err error) issue.Issue {
	ruleFailures.WithLabelValues(rule.Name()).Inc()
	return issue.MustNew(types.SeverityError, issue.CheckFailed, issue.Params{
		"check": rule.Name(),
		"error": err.Error(),
	})
}
