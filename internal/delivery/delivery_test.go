package delivery

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"securefiles/server/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Message
}

func (s *flakySender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("connection refused")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDeliver_SucceedsAfterRetries(t *testing.T) {
	s := &flakySender{failures: 2}
	d := NewDeliverer(s, fastPolicy(3), logging.Discard())

	err := d.Deliver(context.Background(), Message{To: "a@x.com", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 3, s.calls)
	assert.Len(t, s.sent, 1)
}

func TestDeliver_Exhausted(t *testing.T) {
	s := &flakySender{failures: 100}
	d := NewDeliverer(s, fastPolicy(3), logging.Discard())

	err := d.Deliver(context.Background(), Message{To: "a@x.com"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 3, s.calls)
}

func TestDeliver_SingleAttemptPolicy(t *testing.T) {
	s := &flakySender{failures: 1}
	d := NewDeliverer(s, RetryPolicy{}, logging.Discard())

	err := d.Deliver(context.Background(), Message{To: "a@x.com"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 1, s.calls)
}

func TestDeliver_StopsOnCancel(t *testing.T) {
	s := &flakySender{failures: 100}
	policy := RetryPolicy{MaxAttempts: 50, Backoff: 50 * time.Millisecond}
	d := NewDeliverer(s, policy, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Deliver(ctx, Message{To: "a@x.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, s.calls, 50)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logging.New(&buf, "text", "info"))

	require.NoError(t, s.Send(context.Background(), Message{To: "a@x.com", Subject: "hello", PlainBody: "link"}))
	assert.Contains(t, buf.String(), "to=a@x.com")
	assert.Contains(t, buf.String(), "subject=hello")
}

func TestMagicLinkMessage(t *testing.T) {
	msg, err := MagicLinkMessage("a@x.com", MagicLinkData{
		Name:        "alice",
		Link:        "https://files.example.com/magic-login/abc/",
		ExpiresIn:   time.Hour,
		RequestedAt: "March 1, 2025 at 09:00 AM",
		IP:          "203.0.113.7",
		UserAgent:   "<script>",
	})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", msg.To)
	assert.Equal(t, MagicLinkSubject, msg.Subject)
	assert.Contains(t, msg.PlainBody, "https://files.example.com/magic-login/abc/")
	assert.Contains(t, msg.PlainBody, "1h0m0s")
	assert.Contains(t, msg.HTMLBody, `href="https://files.example.com/magic-login/abc/"`)
	assert.False(t, strings.Contains(msg.HTMLBody, "<script>"), "html body must escape user agent")
}

func TestVerifyAndTestEmail(t *testing.T) {
	msg, err := VerifyEmailMessage("b@x.com", VerifyEmailData{Name: "bob", Link: "https://x/api/verify-email/s/", ExpiresIn: time.Hour})
	require.NoError(t, err)
	assert.Contains(t, msg.PlainBody, "https://x/api/verify-email/s/")
	assert.NotEmpty(t, msg.HTMLBody)

	msg, err = TestEmailMessage("ops@x.com", TestEmailData{Host: "smtp.example.com", Port: 587, From: "noreply@x.com"})
	require.NoError(t, err)
	assert.Contains(t, msg.PlainBody, "smtp.example.com")
	assert.Empty(t, msg.HTMLBody)
}

func TestSMTPSender_RejectsBadAddress(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 2525, From: "not an address"})

	err := s.Send(context.Background(), Message{To: "a@x.com", Subject: "x", PlainBody: "y"})
	assert.Error(t, err)
}
