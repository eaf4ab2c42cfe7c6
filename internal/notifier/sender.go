package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/types"
)

// Message is one notification. To, CC and BCC hold mail addresses; channels
// without addressing (webhooks, logs) carry them as metadata.
type Message struct {
	Subject string
	Body    string
	To      []string
	CC      []string
	BCC     []string
	// Severity is the highest severity among the issues in the body.
	Severity types.Severity
}

// Recipients returns every address the message is delivered to.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	out = append(out, m.To...)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

// Sender is the interface for notification channels (mail, webhook, etc.).
// Send blocks until the message is delivered or delivery has failed for good.
type Sender interface {
	// Name returns the sender's identifier (e.g., "smtp", "webhook").
	Name() string

	// Send delivers a message to the channel.
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. Used for
// dry runs.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("log-sender")}
}

// Name implements Sender.
func (s *LogSender) Name() string { return "log" }

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("Notification",
		zap.String("subject", msg.Subject),
		zap.Strings("to", msg.To),
		zap.Strings("cc", msg.CC),
		zap.Strings("bcc", msg.BCC),
		zap.Stringer("severity", msg.Severity),
		zap.String("body", msg.Body),
	)
	return nil
}
