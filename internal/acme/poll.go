package acme

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errNotReady = errors.New("not ready")

// poll calls check with exponential backoff (PollInitial doubling up to
// PollMax) until it reports done, fails, or timeout elapses. A timeout is
// returned as a KindTimeout Error; cancellation of ctx is returned as is.
func (c *Client) poll(ctx context.Context, timeout time.Duration, stage string, check func() (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.PollInitial
	b.MaxInterval = c.opts.PollMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		done, err := check()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotReady
		}
		return nil
	}, backoff.WithContext(b, pollCtx))

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errNotReady) {
		return Timeout(stage, err)
	}
	return err
}
