package dns

import (
	"context"
	"time"

	"go_certhub/internal/metrics"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds retries of RateLimit and Transient vendor errors
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries up to four attempts in total
var DefaultRetryPolicy = RetryPolicy{
	Attempts:        4,
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// Retry runs op until it succeeds, fails with a non retryable error,
// exhausts the policy or ctx is done.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy.backOff(ctx))
}

type retryingProvider struct {
	name   string
	next   Provider
	policy RetryPolicy
}

// WithRetry decorates p with bounded retries, not-found tolerant deletes and
// call metrics.
func WithRetry(name string, p Provider, policy RetryPolicy) Provider {
	return &retryingProvider{name: name, next: p, policy: policy}
}

func (r *retryingProvider) CreateTXTRecord(ctx context.Context, rec TXTRecord) (*RecordHandle, error) {
	var handle *RecordHandle
	err := r.observe("create", func() error {
		return Retry(ctx, r.policy, func() error {
			h, err := r.next.CreateTXTRecord(ctx, rec)
			if err != nil {
				return err
			}
			handle = h
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (r *retryingProvider) DeleteTXTRecord(ctx context.Context, handle *RecordHandle) error {
	return r.observe("delete", func() error {
		return Retry(ctx, r.policy, func() error {
			err := r.next.DeleteTXTRecord(ctx, handle)
			if IsNotFound(err) {
				return nil
			}
			return err
		})
	})
}

func (r *retryingProvider) observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.DNSProviderCallDurationSeconds.WithLabelValues(r.name, operation).Observe(time.Since(start).Seconds())

	result := metrics.Result(err)
	if kind := KindOf(err); kind != "" {
		result = string(kind)
	}
	metrics.DNSProviderCallsTotal.WithLabelValues(r.name, operation, result).Inc()
	return err
}
