package journal

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultRetryInitialInterval = 250 * time.Millisecond
	defaultRetryMaxInterval     = 2 * time.Second
)

// RetryPolicy bounds how often an operation is attempted. MaxAttempts of 0 or 1
// means a single attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = p.InitialInterval
	if exponential.InitialInterval <= 0 {
		exponential.InitialInterval = defaultRetryInitialInterval
	}
	exponential.MaxInterval = p.MaxInterval
	if exponential.MaxInterval <= 0 {
		exponential.MaxInterval = defaultRetryMaxInterval
	}
	exponential.Multiplier = 2
	exponential.MaxElapsedTime = 0
	exponential.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(p.attempts()-1)), ctx)
}

func retryWithData[T any](ctx context.Context, policy RetryPolicy, operation func() (T, error)) (T, error) {
	return backoff.RetryWithData[T](operation, policy.backOff(ctx))
}
