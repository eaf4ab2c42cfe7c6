// Package descprobe checks that authorities serve their descriptor and
// consensus documents, and mails a report for every document that cannot be
// retrieved.
package descprobe

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/document"
	"github.com/tordoctor/doctor/internal/fetch"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/types"
)

// Subject of every failure report.
const Subject = "Unable to retrieve tor descriptors"

const bodyFormat = `Unable to retrieve the present %s...

source: %s
time: %s
error: %s
`

// Failure is one document that could not be retrieved.
type Failure struct {
	Type string
	URL  string
	Time time.Time
	Err  error
}

// Body renders the mail body.
func (f Failure) Body() string {
	return fmt.Sprintf(bodyFormat, f.Type, f.URL, f.Time.Format("01/02/2006 15:04"), f.Err)
}

type target struct {
	label    string
	resource string
	keyword  string
}

var descriptorTargets = []target{
	{label: "server descriptors", resource: fetch.ServerDescriptors, keyword: "router"},
	{label: "extrainfo descriptors", resource: fetch.ExtraInfo, keyword: "extra-info"},
}

// Probe downloads descriptors and consensuses.
type Probe struct {
	logger   *zap.Logger
	getter   fetch.Getter
	registry *directory.Registry
	sender   notifier.Sender
	to       []string
	clock    func() time.Time
}

// New creates a Probe that reports failures to the given addresses.
func New(logger *zap.Logger, getter fetch.Getter, registry *directory.Registry, sender notifier.Sender, to []string) *Probe {
	return &Probe{
		logger:   logger.Named("descprobe"),
		getter:   getter,
		registry: registry,
		sender:   sender,
		to:       to,
		clock:    time.Now,
	}
}

// SetClock overrides the clock used to timestamp failures.
func (p *Probe) SetClock(clock func() time.Time) {
	p.clock = clock
}

// Run retrieves the server and extrainfo descriptors from the first authority
// that serves them, then the consensus from every authority. Every failure is
// mailed. The returned error only reports mails that could not be sent.
func (p *Probe) Run(ctx context.Context) ([]Failure, error) {
	var failures []Failure
	for _, t := range descriptorTargets {
		if f := p.fromAny(ctx, t); f != nil {
			failures = append(failures, *f)
		}
	}
	for _, a := range p.registry.All() {
		if f := p.consensus(ctx, a); f != nil {
			failures = append(failures, *f)
		}
	}

	var errs error
	for _, f := range failures {
		msg := notifier.Message{Subject: Subject, Body: f.Body(), To: p.to, Severity: types.SeverityError}
		if err := p.sender.Send(ctx, msg); err != nil {
			p.logger.Warn("Unable to send email", zap.Error(err))
			errs = multierror.Append(errs, err)
		}
	}
	return failures, errs
}

func (p *Probe) fromAny(ctx context.Context, t target) *Failure {
	p.logger.Debug("Downloading descriptors", zap.String("type", t.label))
	var last *Failure
	for _, a := range p.registry.All() {
		url := fetch.URL(a, t.resource)
		resp, err := p.getter.Get(ctx, a, t.resource)
		if err == nil {
			var count int
			count, err = countEntries(resp.Body, t.keyword)
			if err == nil {
				p.logger.Debug("Descriptors retrieved",
					zap.Int("count", count),
					zap.String("url", resp.URL),
					zap.Duration("elapsed", resp.Elapsed),
				)
				return nil
			}
		}
		last = &Failure{Type: t.label, URL: url, Time: p.clock(), Err: cause(err)}
		p.logger.Debug("Authority did not serve descriptors", zap.String("authority", a.Nickname), zap.Error(err))
	}
	if last == nil {
		last = &Failure{Type: t.label, Time: p.clock(), Err: errors.New("no authorities configured")}
	}
	p.logger.Warn("Unable to retrieve descriptors", zap.String("type", t.label), zap.Error(last.Err))
	return last
}

func (p *Probe) consensus(ctx context.Context, a types.Authority) *Failure {
	p.logger.Debug("Downloading the consensus", zap.String("authority", a.Nickname))
	resp, err := p.getter.Get(ctx, a, fetch.ConsensusResource)
	if err == nil {
		var c *types.Consensus
		if c, err = document.ParseConsensus(resp.Body); err == nil {
			p.logger.Debug("Consensus retrieved",
				zap.Int("count", len(c.Routers)),
				zap.String("url", resp.URL),
				zap.Duration("elapsed", resp.Elapsed),
			)
			return nil
		}
	}
	p.logger.Warn("Unable to retrieve the consensus", zap.String("authority", a.Nickname), zap.Error(err))
	return &Failure{Type: "consensus", URL: fetch.URL(a, fetch.ConsensusResource), Time: p.clock(), Err: cause(err)}
}

// countEntries counts lines starting with the descriptor's first keyword.
func countEntries(body []byte, keyword string) (int, error) {
	count := 0
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == keyword || strings.HasPrefix(line, keyword+" ") {
			count++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("no %q entries in response", keyword)
	}
	return count, nil
}

func cause(err error) error {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fe.Err
	}
	return err
}
