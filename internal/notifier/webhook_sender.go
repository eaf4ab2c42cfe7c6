package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/types"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	maxRetries            = 2
	userAgent             = "consensus-doctor/v1"
)

// WebhookEnvelope is the JSON payload POSTed to webhook endpoints.
type WebhookEnvelope struct {
	// Type identifies the notification kind.
	Type string `json:"type"`
	// SchemaVersion allows consumers to detect breaking changes.
	SchemaVersion string `json:"schemaVersion"`
	// Timestamp is the RFC3339 time the notification was sent.
	Timestamp string `json:"timestamp"`
	Data      WebhookData `json:"data"`
}

// WebhookData mirrors Message.
type WebhookData struct {
	Subject  string   `json:"subject"`
	Severity string   `json:"severity"`
	Body     string   `json:"body"`
	To       []string `json:"to,omitempty"`
	CC       []string `json:"cc,omitempty"`
	BCC      []string `json:"bcc,omitempty"`
}

// WebhookSender implements the Sender interface for generic HTTP POST webhooks.
type WebhookSender struct {
	httpClient  *http.Client
	logger      *zap.Logger
	url         string
	authToken   string
	minSeverity types.Severity
	retryDelay  time.Duration
	now         func() time.Time
}

// WebhookSenderConfig holds the configuration for creating a WebhookSender.
type WebhookSenderConfig struct {
	URL                string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// MinSeverity drops messages whose highest severity is below it.
	MinSeverity types.Severity
	AuthToken   string
	// RetryDelay is the first backoff step; later steps double. Defaults to one
	// second.
	RetryDelay time.Duration
}

// NewWebhookSender creates a WebhookSender. Returns an error if the URL is invalid.
func NewWebhookSender(logger *zap.Logger, cfg WebhookSenderConfig) (*WebhookSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook URL must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("webhook URL must include a host")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultWebhookTimeout
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user-configured
		logger.Warn("Webhook TLS certificate verification is disabled",
			zap.String("url", RedactURL(cfg.URL)))
	}

	return &WebhookSender{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger:      logger.Named("webhook-sender"),
		url:         cfg.URL,
		authToken:   cfg.AuthToken,
		minSeverity: cfg.MinSeverity,
		retryDelay:  delay,
		now:         time.Now,
	}, nil
}

// Name implements Sender.
func (ws *WebhookSender) Name() string { return "webhook" }

// Send implements Sender. Messages below the minimum severity are skipped.
func (ws *WebhookSender) Send(ctx context.Context, msg Message) error {
	if msg.Severity < ws.minSeverity {
		ws.logger.Debug("Skipping webhook below minimum severity",
			zap.Stringer("severity", msg.Severity),
			zap.Stringer("min_severity", ws.minSeverity),
		)
		return nil
	}
	envelope := WebhookEnvelope{
		Type:          "consensus-health.notification",
		SchemaVersion: "1",
		Timestamp:     ws.now().UTC().Format(time.RFC3339),
		Data: WebhookData{
			Subject:  msg.Subject,
			Severity: msg.Severity.String(),
			Body:     msg.Body,
			To:       msg.To,
			CC:       msg.CC,
			BCC:      msg.BCC,
		},
	}
	if err := ws.doSend(ctx, envelope); err != nil {
		ws.logger.Error("Webhook send failed",
			zap.String("url", RedactURL(ws.url)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// doSend performs the HTTP POST with retry logic.
func (ws *WebhookSender) doSend(ctx context.Context, envelope WebhookEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		sendTotal.WithLabelValues(ws.Name(), "error").Inc()
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	// Exponential from the retry delay: 1x then 2x, never above 4x.
	backoff := retry.WithMaxRetries(maxRetries,
		retry.WithCappedDuration(4*ws.retryDelay, retry.NewExponential(ws.retryDelay)))

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			sendTotal.WithLabelValues(ws.Name(), "retry").Inc()
		}
		err := ws.doPost(ctx, body)
		if err == nil {
			return nil
		}
		// Only retry on transient errors (5xx, connection issues).
		if !isRetryable(err) {
			return err
		}
		ws.logger.Debug("Webhook send transient failure, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return retry.RetryableError(err)
	})
	if err != nil {
		sendTotal.WithLabelValues(ws.Name(), "error").Inc()
		return fmt.Errorf("webhook send failed after %d attempts: %w", attempt, err)
	}
	return nil
}

// doPost executes a single HTTP POST request.
func (ws *WebhookSender) doPost(ctx context.Context, body []byte) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(body))
	if err != nil {
		return &webhookError{err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if ws.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+ws.authToken)
	}

	resp, err := ws.httpClient.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		sendDuration.WithLabelValues(ws.Name(), "error").Observe(duration)
		return &webhookError{err: err, retryable: true}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		sendTotal.WithLabelValues(ws.Name(), "success").Inc()
		sendDuration.WithLabelValues(ws.Name(), "success").Observe(duration)
		return nil
	}

	sendDuration.WithLabelValues(ws.Name(), "error").Observe(duration)
	return &webhookError{
		err:       fmt.Errorf("webhook returned HTTP %d", resp.StatusCode),
		retryable: resp.StatusCode >= 500,
	}
}

// webhookError wraps an error with a retryable flag.
type webhookError struct {
	err       error
	retryable bool
}

func (e *webhookError) Error() string { return e.err.Error() }
func (e *webhookError) Unwrap() error { return e.err }

// isRetryable returns true if the error is a transient failure worth retrying.
func isRetryable(err error) bool {
	var we *webhookError
	if errors.As(err, &we) {
		return we.retryable
	}
	// Unknown errors (connection refused, DNS, etc.) are retryable.
	return true
}

// RedactURL masks credentials in a URL for safe logging.
// It redacts userinfo passwords and query parameter values.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	redacted := u.Redacted()
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			q.Set(key, "REDACTED")
		}
		r, err := url.Parse(redacted)
		if err != nil {
			return redacted
		}
		r.RawQuery = q.Encode()
		return r.String()
	}
	return redacted
}
