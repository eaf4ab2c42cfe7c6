package notifier

import (
	"context"
	"errors"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

// fakeRelay records deliveries and fails the first len(errs) attempts.
type fakeRelay struct {
	errs []error
	sent []sentMail
	// attempts counts every call, failed or not.
	attempts int
}

func (f *fakeRelay) send(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
	f.attempts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	f.sent = append(f.sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
	return nil
}

func newTestSMTPSender(t *testing.T, relay *fakeRelay) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(zap.NewNop(), SMTPSenderConfig{
		Addr:    "mail.example.org:25",
		From:    "doctor@example.org",
		Backoff: time.Millisecond,
	})
	require.NoError(t, err)
	s.sendMail = relay.send
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(zap.NewNop(), SMTPSenderConfig{From: "doctor@example.org"})
	require.Error(t, err)

	_, err = NewSMTPSender(zap.NewNop(), SMTPSenderConfig{Addr: "localhost:25", From: "not an address"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from address")
}

func TestSMTPSender_Compose(t *testing.T) {
	relay := &fakeRelay{}
	s := newTestSMTPSender(t, relay)

	msg := testMessage()
	msg.To = []string{"team@example.org"}
	msg.Body = "line one\nline two"
	require.NoError(t, s.Send(context.Background(), msg))
	require.Len(t, relay.sent, 1)

	got := relay.sent[0]
	assert.Equal(t, "mail.example.org:25", got.addr)
	assert.Equal(t, "doctor@example.org", got.from)
	assert.Equal(t, []string{"team@example.org", "ops@example.org", "hidden@example.org"}, got.to)
	assert.Contains(t, got.msg, "To: <team@example.org>\r\n")
	assert.Contains(t, got.msg, "Cc: <ops@example.org>\r\n")
	assert.Contains(t, got.msg, "Subject: Consensus issues\r\n")
	assert.Contains(t, got.msg, "Date: Wed, 01 May 2024 12:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(got.msg, "\r\n\r\nline one\r\nline two\r\n"))
	assert.NotContains(t, got.msg, "hidden@example.org")
}

func TestSMTPSender_NoRecipients(t *testing.T) {
	relay := &fakeRelay{}
	s := newTestSMTPSender(t, relay)
	err := s.Send(context.Background(), Message{Subject: "empty"})
	require.Error(t, err)
	assert.Zero(t, relay.attempts)
}

func TestSMTPSender_RetriesTransientFailures(t *testing.T) {
	relay := &fakeRelay{errs: []error{
		errors.New("connection refused"),
		&textproto.Error{Code: 421, Msg: "try again later"},
	}}
	s := newTestSMTPSender(t, relay)

	require.NoError(t, s.Send(context.Background(), testMessage()))
	assert.Equal(t, 3, relay.attempts)
	assert.Len(t, relay.sent, 1)
}

func TestSMTPSender_PermanentFailure(t *testing.T) {
	relay := &fakeRelay{errs: []error{&textproto.Error{Code: 550, Msg: "mailbox unavailable"}}}
	s := newTestSMTPSender(t, relay)

	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550")
	assert.Equal(t, 1, relay.attempts)
}

func TestSMTPSender_GivesUp(t *testing.T) {
	fail := errors.New("connection reset")
	relay := &fakeRelay{errs: []error{fail, fail, fail, fail, fail}}
	s := newTestSMTPSender(t, relay)

	err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, defaultSMTPRetries+1, relay.attempts)
}

func TestSMTPSender_CancelledDuringBackoff(t *testing.T) {
	fail := errors.New("connection refused")
	relay := &fakeRelay{errs: []error{fail, fail}}
	s, err := NewSMTPSender(zap.NewNop(), SMTPSenderConfig{
		Addr:    "mail.example.org:25",
		From:    "doctor@example.org",
		Backoff: time.Hour,
	})
	require.NoError(t, err)
	s.sendMail = relay.send

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Send(ctx, testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, relay.attempts)
}

func TestSMTPRetryable(t *testing.T) {
	assert.True(t, smtpRetryable(&textproto.Error{Code: 451}))
	assert.False(t, smtpRetryable(&textproto.Error{Code: 554}))
	assert.True(t, smtpRetryable(errors.New("dial tcp: i/o timeout")))
}
