// Package legodns adapts lego's vendor DNS providers to dns.Provider
package legodns

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go_certhub/internal/dns"

	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/providers/dns/alidns"
	"github.com/go-acme/lego/v4/providers/dns/baiducloud"
	"github.com/go-acme/lego/v4/providers/dns/godaddy"
	"github.com/go-acme/lego/v4/providers/dns/huaweicloud"
	"github.com/go-acme/lego/v4/providers/dns/tencentcloud"
)

// Options tune the underlying lego providers
type Options struct {
	RequestTimeout time.Duration
	HuaweiRegion   string
}

// Provider wraps one lego challenge.Provider bound to a credential.
// Some vendors (huaweicloud) remember created record ids inside the
// instance, so the same Provider must serve both create and delete.
type Provider struct {
	vendor string
	lego   challenge.Provider

	// lego providers are not documented as safe for concurrent use
	mu sync.Mutex
}

// Supports reports whether vendor is served through lego
func Supports(vendor string) bool {
	switch vendor {
	case dns.TypeTencentCloud, dns.TypeAliyun, dns.TypeHuaweiCloud, dns.TypeBaiduCloud, dns.TypeGoDaddy:
		return true
	}
	return false
}

// New creates the lego provider for cred.Type
func New(cred dns.Credential, opts Options) (*Provider, error) {
	p, err := newLegoProvider(cred, opts)
	if err != nil {
		return nil, dns.NewError(cred.Type, dns.KindRejected, "", err)
	}
	return Wrap(cred.Type, p), nil
}

// Wrap adapts an already built lego provider
func Wrap(vendor string, p challenge.Provider) *Provider {
	return &Provider{vendor: vendor, lego: p}
}

func newLegoProvider(cred dns.Credential, opts Options) (challenge.Provider, error) {
	switch cred.Type {
	case dns.TypeTencentCloud:
		cf := tencentcloud.NewDefaultConfig()
		cf.SecretID = cred.SecretID
		cf.SecretKey = cred.SecretKey
		if opts.RequestTimeout > 0 {
			cf.HTTPTimeout = opts.RequestTimeout
		}
		return tencentcloud.NewDNSProviderConfig(cf)
	case dns.TypeAliyun:
		cf := alidns.NewDefaultConfig()
		cf.APIKey = cred.SecretID
		cf.SecretKey = cred.SecretKey
		if opts.RequestTimeout > 0 {
			cf.HTTPTimeout = opts.RequestTimeout
		}
		return alidns.NewDNSProviderConfig(cf)
	case dns.TypeHuaweiCloud:
		cf := huaweicloud.NewDefaultConfig()
		cf.AccessKeyID = cred.SecretID
		cf.SecretAccessKey = cred.SecretKey
		cf.Region = opts.HuaweiRegion
		if cf.Region == "" {
			cf.Region = "cn-south-1"
		}
		return huaweicloud.NewDNSProviderConfig(cf)
	case dns.TypeBaiduCloud:
		cf := baiducloud.NewDefaultConfig()
		cf.AccessKeyID = cred.SecretID
		cf.SecretAccessKey = cred.SecretKey
		return baiducloud.NewDNSProviderConfig(cf)
	case dns.TypeGoDaddy:
		cf := godaddy.NewDefaultConfig()
		cf.APIKey = cred.SecretID
		cf.APISecret = cred.SecretKey
		if opts.RequestTimeout > 0 && cf.HTTPClient != nil {
			cf.HTTPClient.Timeout = opts.RequestTimeout
		}
		return godaddy.NewDNSProviderConfig(cf)
	default:
		return nil, fmt.Errorf("unsupported DNS provider type: %s", cred.Type)
	}
}

// CreateTXTRecord calls Present. lego derives the record name and value
// from the identifier and key authorization itself.
func (p *Provider) CreateTXTRecord(ctx context.Context, rec dns.TXTRecord) (*dns.RecordHandle, error) {
	err := p.call(ctx, func() error {
		return p.lego.Present(rec.Domain, rec.Token, rec.KeyAuth)
	})
	if err != nil {
		return nil, err
	}

	return &dns.RecordHandle{
		Provider: p.vendor,
		Domain:   rec.Domain,
		FQDN:     rec.FQDN,
		Value:    rec.Value,
		Token:    rec.Token,
		KeyAuth:  rec.KeyAuth,
	}, nil
}

// DeleteTXTRecord calls CleanUp
func (p *Provider) DeleteTXTRecord(ctx context.Context, handle *dns.RecordHandle) error {
	return p.call(ctx, func() error {
		return p.lego.CleanUp(handle.Domain, handle.Token, handle.KeyAuth)
	})
}

// call runs a blocking lego operation, giving up when ctx is done.
// The abandoned call finishes in the background.
func (p *Provider) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		done <- fn()
	}()

	select {
	case err := <-done:
		return dns.Classify(p.vendor, err)
	case <-ctx.Done():
		return ctx.Err()
	}
}
