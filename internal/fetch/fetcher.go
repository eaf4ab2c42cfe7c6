package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
	"github.com/tordoctor/doctor/internal/util"
)

// Options tunes the Fetcher.
type Options struct {
	// Concurrency caps simultaneous downloads. Defaults to 4.
	Concurrency int
	// RequestsPerSecond paces download starts. Zero means unlimited.
	RequestsPerSecond float64
	// Budget bounds the whole fetch stage. Zero means no bound beyond the
	// per-request timeout.
	Budget time.Duration
	// LatencyFactor flags consensus downloads slower than this multiple of
	// the median. Defaults to 5.
	LatencyFactor float64
	// ClockSkewLimit flags authorities whose Date header differs from ours
	// by more than this. Defaults to 10 seconds.
	ClockSkewLimit time.Duration
}

func (o *Options) setDefaults() {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.LatencyFactor <= 0 {
		o.LatencyFactor = 5
	}
	if o.ClockSkewLimit <= 0 {
		o.ClockSkewLimit = 10 * time.Second
	}
}

// Getter downloads a resource from an authority. *Client implements it.
type Getter interface {
	Get(ctx context.Context, a types.Authority, resource string) (*Response, error)
}

// Fetcher downloads the current consensus and vote from every voting
// authority.
type Fetcher struct {
	logger   *zap.Logger
	getter   Getter
	registry *directory.Registry
	opts     Options
	limiter  *rate.Limiter
	clock    func() time.Time
}

// NewFetcher creates a Fetcher.
func NewFetcher(logger *zap.Logger, getter Getter, registry *directory.Registry, opts Options) *Fetcher {
	opts.setDefaults()
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	return &Fetcher{
		logger:   logger.Named("fetcher"),
		getter:   getter,
		registry: registry,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, opts.Concurrency),
		clock:    time.Now,
	}
}

// SetClock overrides the clock used for skew measurement.
func (f *Fetcher) SetClock(clock func() time.Time) {
	f.clock = clock
}

type kind struct {
	label    string
	resource string
}

var (
	consensusKind = kind{label: "consensus", resource: ConsensusResource}
	voteKind      = kind{label: "vote", resource: VoteResource}
)

type result struct {
	authority types.Authority
	url       string
	consensus *types.Consensus
	vote      *types.Vote
	elapsed   time.Duration
	skew      time.Duration
	err       error
}

// FetchAll downloads every document and assembles the cycle's Set. Failed
// downloads become AUTHORITY_UNAVAILABLE issues. Consensus issues come first,
// followed by latency and clock skew, then vote issues.
func (f *Fetcher) FetchAll(ctx context.Context) (*document.Set, []issue.Issue) {
	if f.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Budget)
		defer cancel()
	}

	voting := f.registry.Voting()
	consensusResults := make([]result, len(voting))
	voteResults := make([]result, len(voting))

	var g errgroup.Group
	g.SetLimit(f.opts.Concurrency)
	for i, a := range voting {
		i, a := i, a
		g.Go(func() error {
			consensusResults[i] = f.fetchOne(ctx, a, consensusKind)
			return nil
		})
		g.Go(func() error {
			voteResults[i] = f.fetchOne(ctx, a, voteKind)
			return nil
		})
	}
	_ = g.Wait()

	consensuses := map[string]*types.Consensus{}
	votes := map[string]*types.Vote{}
	latency := map[string]time.Duration{}
	skew := map[string]time.Duration{}
	var issues []issue.Issue

	for _, r := range consensusResults {
		if r.err != nil {
			issues = append(issues, f.unavailable(consensusKind, r))
			continue
		}
		consensuses[r.authority.Nickname] = r.consensus
		latency[r.authority.Nickname] = r.elapsed
		skew[r.authority.Nickname] = r.skew
	}
	issues = append(issues, f.latencyIssues(latency)...)
	issues = append(issues, f.skewIssues(skew)...)
	for _, r := range voteResults {
		if r.err != nil {
			issues = append(issues, f.unavailable(voteKind, r))
			continue
		}
		votes[r.authority.Nickname] = r.vote
	}

	set := document.NewSet(consensuses, votes)
	set.FetchLatency = latency
	set.ClockSkew = skew
	f.logger.Info("Fetched documents",
		zap.Int("consensuses", len(consensuses)),
		zap.Int("votes", len(votes)),
		zap.Int("issues", len(issues)),
	)
	return set, issues
}

// fetchOne never panics: a panic while downloading or parsing becomes the
// result's error so a single bad document cannot take down the cycle.
func (f *Fetcher) fetchOne(ctx context.Context, a types.Authority, k kind) (r result) {
	r = result{authority: a, url: URL(a, k.resource)}
	defer func() {
		if p := recover(); p != nil {
			f.logger.Error("Panic while fetching document",
				zap.String("type", k.label),
				zap.String("authority", a.Nickname),
				zap.Any("panic", p),
			)
			r = result{authority: a, url: r.url, err: &Error{Authority: a.Nickname, URL: r.url, Err: fmt.Errorf("panic: %v", p)}}
			fetchTotal.WithLabelValues(k.label, "malformed").Inc()
		}
	}()
	if err := f.limiter.Wait(ctx); err != nil {
		r.err = &Error{Authority: a.Nickname, URL: r.url, Err: err}
		fetchTotal.WithLabelValues(k.label, "error").Inc()
		return r
	}

	f.logger.Debug("Downloading document", zap.String("type", k.label), zap.String("authority", a.Nickname))
	started := f.clock()
	resp, err := f.getter.Get(ctx, a, k.resource)
	if err != nil {
		r.err = err
		fetchTotal.WithLabelValues(k.label, "error").Inc()
		return r
	}
	fetchDuration.WithLabelValues(k.label).Observe(resp.Elapsed.Seconds())
	r.elapsed = resp.Elapsed
	if !resp.Date.IsZero() {
		r.skew = started.Sub(resp.Date)
	}

	switch k {
	case consensusKind:
		r.consensus, err = document.ParseConsensus(resp.Body)
	case voteKind:
		r.vote, err = document.ParseVote(resp.Body)
	}
	if err != nil {
		r.err = &Error{Authority: a.Nickname, URL: r.url, Err: err}
		fetchTotal.WithLabelValues(k.label, "malformed").Inc()
		return r
	}
	fetchTotal.WithLabelValues(k.label, "success").Inc()
	return r
}

func (f *Fetcher) unavailable(k kind, r result) issue.Issue {
	cause := r.err
	var fe *Error
	if errors.As(cause, &fe) {
		cause = fe.Err
	}
	f.logger.Warn("Unable to retrieve document",
		zap.String("type", k.label),
		zap.String("authority", r.authority.Nickname),
		zap.String("url", r.url),
		zap.Error(cause),
	)
	return issue.MustNew(types.SeverityError, issue.AuthorityUnavailable, issue.Params{
		"fetch_type": k.label,
		"authority":  r.authority.Nickname,
		"url":        r.url,
		"error":      cause.Error(),
	}, r.authority.Nickname)
}

func (f *Fetcher) latencyIssues(times map[string]time.Duration) []issue.Issue {
	if len(times) == 0 {
		return nil
	}
	nicknames := util.SortedKeys(times)
	seconds := make([]float64, 0, len(times))
	labels := make([]string, 0, len(times))
	for _, nickname := range nicknames {
		s := times[nickname].Seconds()
		seconds = append(seconds, s)
		labels = append(labels, fmt.Sprintf("%s => %0.1fs", nickname, s))
	}
	median, err := stats.Median(seconds)
	if err != nil {
		f.logger.Warn("Unable to compute median download time", zap.Error(err))
		return nil
	}

	var issues []issue.Issue
	for i, nickname := range nicknames {
		if seconds[i] > median*f.opts.LatencyFactor {
			issues = append(issues, issue.MustNew(types.SeverityNotice, issue.Latency, issue.Params{
				"authority":       nickname,
				"time_taken":      fmt.Sprintf("%0.1fs", seconds[i]),
				"median_time":     fmt.Sprintf("%0.1fs", median),
				"authority_times": strings.Join(labels, ", "),
			}, nickname))
		}
	}
	return issues
}

func (f *Fetcher) skewIssues(skew map[string]time.Duration) []issue.Issue {
	var issues []issue.Issue
	for _, nickname := range util.SortedKeys(skew) {
		d := skew[nickname].Abs()
		if d > f.opts.ClockSkewLimit {
			issues = append(issues, issue.MustNew(types.SeverityNotice, issue.ClockSkew, issue.Params{
				"authority":  nickname,
				"difference": fmt.Sprintf("%d", int64(d/time.Second)),
			}, nickname))
		}
	}
	return issues
}
