package infrastructure

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
)

var _ events.Publisher = (*RetryingPublisher)(nil)

// RetryPolicy bounds the exponential backoff used for transport and store calls
type RetryPolicy struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy retries five times starting at 100ms, capped at 2s per wait
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:     5,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// Backoff builds the go-retry backoff for the policy
func (p RetryPolicy) Backoff() retry.Backoff {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = DefaultRetryPolicy.InitialBackoff
	}

	b := retry.NewExponential(initial)
	b = retry.WithJitterPercent(10, b)
	if p.MaxBackoff > 0 {
		b = retry.WithCappedDuration(p.MaxBackoff, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Do runs fn, retrying every error it returns until the policy is exhausted or ctx is done
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.DoUnless(ctx, func(error) bool { return false }, fn)
}

// DoUnless is Do, except that an error for which permanent returns true is returned at once
func (p RetryPolicy) DoUnless(ctx context.Context, permanent func(error) bool, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || permanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// RetryingPublisher retries transport failures with backoff before giving up.
// Publish succeeding means the inner transport accepted the events.
type RetryingPublisher struct {
	next   events.Publisher
	policy RetryPolicy
	log    *logger.Logger
}

// NewRetryingPublisher decorates next with the given policy
func NewRetryingPublisher(next events.Publisher, policy RetryPolicy, log *logger.Logger) *RetryingPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &RetryingPublisher{next: next, policy: policy, log: log}
}

// Publish implements events.Publisher
func (p *RetryingPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	attempt := 0
	err := p.policy.Do(ctx, func(ctx context.Context) error {
		attempt++
		err := p.next.Publish(ctx, evts...)
		if err != nil {
			p.log.WithContext(ctx).WithError(err).Warnf("publish attempt failed", map[string]interface{}{
				"attempt": attempt,
				"events":  len(evts),
			})
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "publish failed after %d attempts", attempt)
	}
	return nil
}
