package main

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// exportMetrics writes the default registry to the textfile and/or pushes it
// to a Pushgateway.
func exportMetrics(opts options, logger *zap.Logger) error {
	var errs error
	if opts.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("write metrics textfile: %w", err))
		} else {
			logger.Debug("Wrote metrics", zap.String("path", opts.MetricsTextfile))
		}
	}
	if opts.Pushgateway != "" {
		if err := push.New(opts.Pushgateway, "doctor").Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("push metrics: %w", err))
		} else {
			logger.Debug("Pushed metrics", zap.String("url", opts.Pushgateway))
		}
	}
	return errs
}
