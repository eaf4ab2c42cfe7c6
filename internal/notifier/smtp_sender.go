package notifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultSMTPRetries = 3
	defaultSMTPBackoff = 2 * time.Second
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSenderConfig holds the configuration for creating an SMTPSender.
type SMTPSenderConfig struct {
	// Addr is the relay's host:port.
	Addr     string
	From     string
	Username string
	Password string
	// Retries is the number of retries after the first attempt.
	Retries int
	// Backoff is the first exponential backoff step.
	Backoff time.Duration
}

// SMTPSender delivers messages through an SMTP relay.
type SMTPSender struct {
	logger   *zap.Logger
	cfg      SMTPSenderConfig
	auth     smtp.Auth
	sendMail SendMailFunc
	now      func() time.Time
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(logger *zap.Logger, cfg SMTPSenderConfig) (*SMTPSender, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("smtp address is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", cfg.From, err)
	}
	if cfg.Retries == 0 {
		cfg.Retries = defaultSMTPRetries
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = defaultSMTPBackoff
	}
	s := &SMTPSender{
		logger:   logger.Named("smtp-sender"),
		cfg:      cfg,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
	if cfg.Username != "" {
		host := cfg.Addr
		if i := strings.LastIndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s, nil
}

// Name implements Sender.
func (s *SMTPSender) Name() string { return "smtp" }

// Send implements Sender. Temporary (4xx) replies and connection failures are
// retried with exponential backoff.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	rcpts := msg.Recipients()
	if len(rcpts) == 0 {
		return fmt.Errorf("message %q has no recipients", msg.Subject)
	}
	raw := s.compose(msg)

	backoff := retry.WithMaxRetries(uint64(s.cfg.Retries), retry.NewExponential(s.cfg.Backoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			sendTotal.WithLabelValues(s.Name(), "retry").Inc()
		}
		start := time.Now()
		err := s.sendMail(s.cfg.Addr, s.auth, s.cfg.From, rcpts, raw)
		if err == nil {
			sendDuration.WithLabelValues(s.Name(), "success").Observe(time.Since(start).Seconds())
			return nil
		}
		sendDuration.WithLabelValues(s.Name(), "error").Observe(time.Since(start).Seconds())
		if !smtpRetryable(err) {
			return err
		}
		s.logger.Debug("SMTP send transient failure, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		sendTotal.WithLabelValues(s.Name(), "error").Inc()
		return fmt.Errorf("send %q after %d attempts: %w", msg.Subject, attempt, err)
	}
	sendTotal.WithLabelValues(s.Name(), "success").Inc()
	s.logger.Info("Sent notification",
		zap.String("subject", msg.Subject),
		zap.Int("recipients", len(rcpts)),
	)
	return nil
}

// compose renders the RFC 5322 message. BCC recipients never appear in the
// headers.
func (s *SMTPSender) compose(msg Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	header("From", s.cfg.From)
	if len(msg.To) > 0 {
		header("To", formatAddresses(msg.To))
	}
	if len(msg.CC) > 0 {
		header("Cc", formatAddresses(msg.CC))
	}
	header("Subject", msg.Subject)
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func formatAddresses(addrs []string) string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = (&mail.Address{Address: a}).String()
	}
	return strings.Join(out, ", ")
}

// smtpRetryable reports whether a failed delivery is worth retrying. The
// server's 5xx replies are permanent.
func smtpRetryable(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 400 && tpErr.Code < 500
	}
	return true
}
