package fetch

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tordoctor/doctor/internal/directory"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

const defaultDialTimeout = 10 * time.Second

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Prober checks that authority ORPorts accept TCP connections.
type Prober struct {
	logger      *zap.Logger
	registry    *directory.Registry
	dial        DialFunc
	timeout     time.Duration
	concurrency int
}

// NewProber creates a Prober. A zero timeout means ten seconds.
func NewProber(logger *zap.Logger, registry *directory.Registry, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := &net.Dialer{}
	return &Prober{
		logger:      logger.Named("prober"),
		registry:    registry,
		dial:        d.DialContext,
		timeout:     timeout,
		concurrency: 8,
	}
}

type endpoint struct {
	authority string
	address   string
	port      int
}

// ProbeORPorts dials every OR address the latest consensus lists for each
// authority. Authorities missing from the consensus are skipped.
func (p *Prober) ProbeORPorts(ctx context.Context, latest *types.Consensus) []issue.Issue {
	if latest == nil {
		return nil
	}
	var endpoints []endpoint
	for _, a := range p.registry.All() {
		r, ok := latest.Routers[a.Fingerprint]
		if !ok {
			continue
		}
		endpoints = append(endpoints, endpoint{authority: a.Nickname, address: r.Address, port: r.ORPort})
		for _, addr := range r.ORAddresses {
			endpoints = append(endpoints, endpoint{authority: a.Nickname, address: addr.Address, port: addr.Port})
		}
	}

	failures := make([]error, len(endpoints))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			failures[i] = p.reach(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	var issues []issue.Issue
	for i, err := range failures {
		if err == nil {
			orportProbes.WithLabelValues("success").Inc()
			continue
		}
		orportProbes.WithLabelValues("error").Inc()
		ep := endpoints[i]
		p.logger.Warn("Unable to reach ORPort",
			zap.String("authority", ep.authority),
			zap.String("address", ep.address),
			zap.Int("port", ep.port),
			zap.Error(err),
		)
		issues = append(issues, issue.MustNew(types.SeverityWarning, issue.UnableToReachORPort, issue.Params{
			"authority": ep.authority,
			"address":   ep.address,
			"port":      strconv.Itoa(ep.port),
			"error":     err.Error(),
		}, ep.authority))
	}
	return issues
}

func (p *Prober) reach(ctx context.Context, ep endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", net.JoinHostPort(ep.address, strconv.Itoa(ep.port)))
	if err != nil {
		return err
	}
	return conn.Close()
}
