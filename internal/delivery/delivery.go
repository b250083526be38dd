// Package delivery sends transactional email with a bounded retry policy.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"securefiles/server/internal/logging"
	"securefiles/server/internal/obs"

	"github.com/sethvargo/go-retry"
)

// ErrDeliveryFailed is returned once every attempt has failed.
var ErrDeliveryFailed = errors.New("delivery_failed")

type Message struct {
	To        string
	Subject   string
	PlainBody string
	HTMLBody  string
}

// Sender performs a single delivery attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type RetryPolicy struct {
	MaxAttempts int
	// Backoff is the first wait; it doubles per attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// AttemptTimeout bounds a single Send call. Zero means no bound.
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}

	b := retry.NewExponential(base)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

type Deliverer struct {
	sender Sender
	policy RetryPolicy
	log    logging.Logger
}

func NewDeliverer(sender Sender, policy RetryPolicy, log logging.Logger) *Deliverer {
	return &Deliverer{sender: sender, policy: policy, log: log.With("component", "delivery")}
}

// Deliver sends msg, retrying per policy. Exhaustion wraps ErrDeliveryFailed;
// cancellation of ctx stops retrying and returns the context error.
func (d *Deliverer) Deliver(ctx context.Context, msg Message) error {
	attempt := 0
	err := retry.Do(ctx, d.policy.backoff(), func(ctx context.Context) error {
		attempt++

		actx := ctx
		if d.policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, d.policy.AttemptTimeout)
			defer cancel()
		}

		if err := d.sender.Send(actx, msg); err != nil {
			obs.DeliveryAttempt("error")
			d.log.Warn(ctx, "email attempt failed", "attempt", attempt, "subject", msg.Subject, "error", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		obs.DeliveryAttempt("ok")
		return nil
	})
	if err == nil {
		d.log.Info(ctx, "email sent", "subject", msg.Subject, "attempts", attempt)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	d.log.Error(ctx, "email delivery failed", "subject", msg.Subject, "attempts", attempt, "error", err)
	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, attempt, err)
}
