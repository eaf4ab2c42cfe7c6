package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/config"
	"github.com/tordoctor/doctor/internal/descprobe"
	"github.com/tordoctor/doctor/internal/fetch"
)

func descriptorsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "descriptors",
		Short: "Check that authorities serve descriptors and consensuses",
		Long: `Download the server and extrainfo descriptors from any authority and the
consensus from every authority. Each document that cannot be retrieved is
reported by mail.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := loadOptions(v)
			logger, err := newLogger(opts.Debug)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			return runDescriptors(cmd.Context(), opts, logger)
		},
	}
}

func runDescriptors(ctx context.Context, opts options, logger *zap.Logger) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	senders, err := buildSenders(cfg, opts, logger)
	if err != nil {
		return err
	}
	to := cfg.NotifyAddress
	if cfg.ErrorAddress != "" {
		to = []string{cfg.ErrorAddress}
	}

	client := fetch.NewClient(logger, fetch.ClientConfig{Timeout: opts.Timeout, UserAgent: "consensus-doctor/" + version})
	probe := descprobe.New(logger, client, reg, senders[0], to)
	failures, err := probe.Run(ctx)
	if err != nil {
		logger.Warn("Unable to send email", zap.Error(err))
	}
	logger.Info("Descriptor check complete", zap.Int("failures", len(failures)))
	return nil
}
