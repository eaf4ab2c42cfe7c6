package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tordoctor/doctor/internal/config"
	"github.com/tordoctor/doctor/internal/notifier"
	"github.com/tordoctor/doctor/internal/suppression"
	"github.com/tordoctor/doctor/internal/types"
)

const (
	storeFile   = "file"
	storePebble = "pebble"
)

func newLogger(debug bool) (*zap.Logger, error) {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		logConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return logConfig.Build()
}

// openStore opens the suppression store selected by opts.Store.
func openStore(opts options, logger *zap.Logger) (suppression.Store, error) {
	switch opts.Store {
	case storeFile, "":
		return suppression.OpenFileStore(filepath.Join(opts.DataDir, "last_notified.yaml"), logger)
	case storePebble:
		return suppression.OpenPebbleStore(filepath.Join(opts.DataDir, "suppression.pebble"), logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", opts.Store, storeFile, storePebble)
	}
}

// buildSenders returns the configured notification channels. Dry runs and
// configurations without any channel log notifications instead.
func buildSenders(cfg *config.Config, opts options, logger *zap.Logger) ([]notifier.Sender, error) {
	if opts.DryRun {
		return []notifier.Sender{notifier.NewLogSender(logger)}, nil
	}
	var senders []notifier.Sender
	if cfg.SMTP != nil {
		s, err := notifier.NewSMTPSender(logger, notifier.SMTPSenderConfig{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: envValue(cfg.SMTP.PasswordEnv),
			Retries:  cfg.SMTP.Retries,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp sender: %w", err)
		}
		senders = append(senders, s)
	}
	if cfg.Webhook != nil {
		s, err := notifier.NewWebhookSender(logger, notifier.WebhookSenderConfig{
			URL:                cfg.Webhook.URL,
			Timeout:            durationOf(cfg.Webhook.Timeout),
			InsecureSkipVerify: cfg.Webhook.InsecureSkipVerify,
			MinSeverity:        cfg.Webhook.Threshold(),
			AuthToken:          envValue(cfg.Webhook.TokenEnv),
		})
		if err != nil {
			return nil, fmt.Errorf("webhook sender: %w", err)
		}
		senders = append(senders, s)
	}
	if len(senders) == 0 {
		logger.Warn("No notification channel configured, logging notifications")
		senders = append(senders, notifier.NewLogSender(logger))
	}
	return senders, nil
}

func envValue(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func durationOf(d config.Duration) time.Duration { return time.Duration(d) }

// reportFailure mails a failure of the tool itself to the error address.
func reportFailure(ctx context.Context, cfg *config.Config, senders []notifier.Sender, logger *zap.Logger, failure error) {
	if cfg == nil || cfg.ErrorAddress == "" {
		return
	}
	msg := notifier.Message{
		Subject:  "Script Error",
		Body:     failure.Error(),
		To:       []string{cfg.ErrorAddress},
		Severity: types.SeverityError,
	}
	for _, s := range senders {
		if err := s.Send(ctx, msg); err != nil {
			logger.Warn("Unable to send failure report", zap.String("sender", s.Name()), zap.Error(err))
		}
	}
}
