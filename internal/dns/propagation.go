package dns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mdns "github.com/miekg/dns"
)

// ErrPropagationTimeout is returned when records are not visible in time
var ErrPropagationTimeout = errors.New("dns propagation timeout")

// PropagationChecker reports whether a TXT value is visible
type PropagationChecker interface {
	Check(ctx context.Context, fqdn, value string) (bool, error)
}

// ResolverChecker queries recursive resolvers directly
type ResolverChecker struct {
	Resolvers []string
	client    *mdns.Client
}

// NewResolverChecker creates a checker over resolvers (host:port)
func NewResolverChecker(resolvers []string, timeout time.Duration) *ResolverChecker {
	return &ResolverChecker{
		Resolvers: resolvers,
		client:    &mdns.Client{Net: "udp", Timeout: timeout},
	}
}

// Check returns true when every reachable resolver answers with value.
// It fails only when no resolver could be reached.
func (c *ResolverChecker) Check(ctx context.Context, fqdn, value string) (bool, error) {
	if len(c.Resolvers) == 0 {
		return false, fmt.Errorf("no resolvers configured")
	}

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(fqdn), mdns.TypeTXT)
	msg.RecursionDesired = true

	var lastErr error
	answered := 0
	for _, resolver := range c.Resolvers {
		in, _, err := c.client.ExchangeContext(ctx, msg, resolver)
		if err != nil {
			lastErr = err
			continue
		}
		answered++
		if in.Rcode != mdns.RcodeSuccess || !hasTXT(in, value) {
			return false, nil
		}
	}

	if answered == 0 {
		return false, fmt.Errorf("all resolvers failed: %w", lastErr)
	}
	return true, nil
}

func hasTXT(msg *mdns.Msg, value string) bool {
	for _, rr := range msg.Answer {
		if txt, ok := rr.(*mdns.TXT); ok && strings.Join(txt.Txt, "") == value {
			return true
		}
	}
	return false
}

// WaitForPropagation polls checker until every record is visible, the
// timeout elapses or ctx is done.
func WaitForPropagation(parent context.Context, checker PropagationChecker, records []TXTRecord, interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	pending := make(map[string]TXTRecord, len(records))
	for _, rec := range records {
		pending[rec.FQDN+"|"+rec.Value] = rec
	}

	var lastErr error
	op := func() error {
		for key, rec := range pending {
			ok, err := checker.Check(ctx, rec.FQDN, rec.Value)
			if err != nil {
				lastErr = err
				continue
			}
			if ok {
				delete(pending, key)
			}
		}
		if len(pending) > 0 {
			return fmt.Errorf("%d record(s) not visible yet", len(pending))
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}

	names := make([]string, 0, len(pending))
	for _, rec := range pending {
		names = append(names, rec.FQDN)
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %s not visible: %v", ErrPropagationTimeout, strings.Join(names, ", "), lastErr)
	}
	return fmt.Errorf("%w: %s not visible", ErrPropagationTimeout, strings.Join(names, ", "))
}
