// Package providers builds vendor DNS adapters from decrypted credentials
package providers

import (
	"context"
	"fmt"
	"time"

	"go_certhub/internal/dns"
	"go_certhub/internal/dns/providers/cloudflare"
	"go_certhub/internal/dns/providers/legodns"
	"go_certhub/internal/dns/providers/route53"
)

// Options configure adapter construction
type Options struct {
	Retry          dns.RetryPolicy
	RequestTimeout time.Duration
	HuaweiRegion   string
}

// Factory builds a dns.Provider for a credential. One provider serves a
// single issuance flow from record creation through cleanup.
type Factory interface {
	New(ctx context.Context, cred dns.Credential) (dns.Provider, error)
}

// Registry is the default Factory
type Registry struct {
	opts Options
}

// NewRegistry creates a Registry
func NewRegistry(opts Options) *Registry {
	if opts.Retry.Attempts == 0 {
		opts.Retry = dns.DefaultRetryPolicy
	}
	return &Registry{opts: opts}
}

// New returns the vendor adapter for cred.Type wrapped with retries
func (r *Registry) New(ctx context.Context, cred dns.Credential) (dns.Provider, error) {
	var (
		p   dns.Provider
		err error
	)

	switch {
	case cred.Type == dns.TypeCloudflare:
		p = cloudflare.New(cred)
	case cred.Type == dns.TypeRoute53:
		p, err = route53.New(ctx, cred.SecretID, cred.SecretKey)
	case legodns.Supports(cred.Type):
		p, err = legodns.New(cred, legodns.Options{
			RequestTimeout: r.opts.RequestTimeout,
			HuaweiRegion:   r.opts.HuaweiRegion,
		})
	default:
		return nil, dns.NewError(cred.Type, dns.KindRejected, "", fmt.Errorf("unsupported DNS provider type: %s", cred.Type))
	}
	if err != nil {
		return nil, err
	}

	return dns.WithRetry(cred.Type, p, r.opts.Retry), nil
}
