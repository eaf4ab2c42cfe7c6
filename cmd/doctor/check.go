package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/checks"
	"github.com/tordoctor/doctor/internal/config"
	"github.com/tordoctor/doctor/internal/fetch"
	"github.com/tordoctor/doctor/internal/health"
	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/suppression"
)

func checkCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one audit cycle",
		Long: `Download every authority's consensus and vote, run the checks, and
notify about issues that were not reported recently.

Examples:
  # Run against the shipped authority list
  doctor check --config doctor.yaml --data-dir /var/lib/doctor

  # Print notifications instead of sending them
  doctor check --dry-run --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := loadOptions(v)
			logger, err := newLogger(opts.Debug)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			err = runCheck(cmd.Context(), opts, logger)
			if mErr := exportMetrics(opts, logger); mErr != nil {
				logger.Warn("Unable to export metrics", zap.Error(mErr))
			}
			return err
		},
	}
}

// cycleRunner is satisfied by *health.Runner.
type cycleRunner interface {
	RunOnce(ctx context.Context) (health.Report, error)
}

// cycle holds the wired components of one check run.
type cycle struct {
	runner  cycleRunner
	store   suppression.Store
	senders []notifier.Sender
}

func buildCycle(cfg *config.Config, opts options, logger *zap.Logger) (*cycle, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	senders, err := buildSenders(cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	engine := checks.NewEngine(logger)
	engine.SetParallelism(opts.Parallelism)
	env := checks.Env{
		Registry:             reg,
		BandwidthAuthorities: cfg.BandwidthAuthorities,
		Excluded:             cfg.ExcludedAuthorities,
		KnownParams:          cfg.KnownParams,
	}
	if err := checks.Register(engine, env, cfg.ExtraChecks); err != nil {
		return nil, err
	}

	store, err := openStore(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("open suppression store: %w", err)
	}
	renderer := issue.NewRenderer(cfg.MessageCatalogue(), logger)
	manager := suppression.NewManager(store, renderer, cfg.Durations(), cfg.Contacts(), logger)

	dispatchOpts := notifier.DefaultDispatcherOptions()
	dispatchOpts.To = cfg.NotifyAddress
	dispatchOpts.AnnounceAddress = cfg.AnnounceAddress
	dispatchOpts.Senders = senders
	dispatcher := notifier.NewDispatcher(logger, manager, notifier.NewRouter(renderer, manager), dispatchOpts)

	client := fetch.NewClient(logger, fetch.ClientConfig{Timeout: opts.Timeout, UserAgent: "consensus-doctor/" + version})
	fetcher := fetch.NewFetcher(logger, client, reg, fetch.Options{
		Concurrency:       opts.Concurrency,
		RequestsPerSecond: opts.Rate,
		Budget:            opts.Budget,
	})

	var prober health.Prober
	if opts.CheckORPort {
		prober = fetch.NewProber(logger, reg, 0)
	}

	runner := health.NewRunner(logger, fetcher, engine, prober, dispatcher, manager)
	if len(cfg.LegacyAddresses) > 0 {
		runner.AddCheck(fetch.NewLegacyCheck(logger, client, cfg.LegacyAddresses))
	}

	return &cycle{
		runner:  runner,
		store:   store,
		senders: senders,
	}, nil
}

func runCheck(ctx context.Context, opts options, logger *zap.Logger) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		logger.Error("Unable to load configuration", zap.String("path", opts.ConfigPath), zap.Error(err))
		return err
	}

	c, err := buildCycle(cfg, opts, logger)
	if err != nil {
		logger.Error("Unable to set up check", zap.Error(err))
		return err
	}
	defer c.store.Close()

	return runCycle(ctx, cfg, c, logger)
}

// runCycle runs the cycle and reports any failure, panics included, to the
// error address.
func runCycle(ctx context.Context, cfg *config.Config, c *cycle, logger *zap.Logger) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			logger.Error("Script failed", zap.Error(err), zap.Stack("stack"))
			reportFailure(ctx, cfg, c.senders, logger, err)
		}
	}()

	report, err := c.runner.RunOnce(ctx)
	if err != nil {
		logger.Error("Script failed", zap.Error(err))
		reportFailure(ctx, cfg, c.senders, logger, err)
		return err
	}
	logger.Info("Check complete",
		zap.Stringer("outcome", report.Outcome),
		zap.Int("issues", len(report.Issues)),
		zap.Int("suppressed", len(report.Suppressed)),
		zap.Duration("duration", report.Duration),
	)
	return nil
}
