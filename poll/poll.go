// Package poll repeats a check at a fixed interval until it succeeds or a budget runs out.
package poll

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a poll loop.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPolicy is 20 attempts one second apart.
var DefaultPolicy = Policy{MaxAttempts: 20, Interval: time.Second}

// Condition reports whether the awaited state is reached. An error stops polling immediately.
type Condition func(ctx context.Context) (bool, error)

var errPending = errors.New("condition not met")

// Until runs cond until it returns true, returns an error, the policy is exhausted or ctx is done.
// It returns true only if the condition was met.
func Until(ctx context.Context, policy Policy, cond Condition) (bool, error) {
	if policy.MaxAttempts <= 0 {
		return false, nil
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(policy.Interval)
	b = backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	err := backoff.Retry(func() error {
		done, err := cond(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errPending
		}
		return nil
	}, b)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errPending):
		return false, nil
	default:
		return false, err
	}
}
