package dispatch

import (
	"context"
	"errors"
	"time"

	gateway "github.com/kianmehr/campaign-gateway/internal/gateways"
	"github.com/kianmehr/campaign-gateway/pkg/logger"
)

var (
	// ErrAuthFailed aborts the whole campaign run: retrying other
	// recipients with rejected credentials would only burn quota.
	ErrAuthFailed = errors.New("provider authentication failed")
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// RetryExecutor reruns a send until it succeeds, fails permanently, or
// runs out of attempts. The delay between attempts grows linearly:
// retryDelay, 2*retryDelay, and so on.
type RetryExecutor struct {
	maxAttempts int
	retryDelay  time.Duration
}

func NewRetryExecutor(maxAttempts int, retryDelay time.Duration) *RetryExecutor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &RetryExecutor{maxAttempts: maxAttempts, retryDelay: retryDelay}
}

// Execute returns the final outcome, the number of attempts spent, and an
// error only for auth failures or context cancellation. A permanent or
// exhausted-transient failure is reported through the outcome alone.
func (e *RetryExecutor) Execute(ctx context.Context, fn func(context.Context) *gateway.SendOutcome) (*gateway.SendOutcome, int, error) {
	var outcome *gateway.SendOutcome
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		outcome = fn(ctx)
		if outcome.Success {
			return outcome, attempt, nil
		}

		switch outcome.Kind {
		case gateway.KindAuth:
			return outcome, attempt, ErrAuthFailed
		case gateway.KindPermanent:
			return outcome, attempt, nil
		}

		if attempt < e.maxAttempts {
			delay := e.retryDelay * time.Duration(attempt)
			logger.Debug("transient send failure, retrying",
				"recipient", outcome.Recipient, "attempt", attempt, "delay", delay.String())
			select {
			case <-ctx.Done():
				return outcome, attempt, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return outcome, e.maxAttempts, nil
}
