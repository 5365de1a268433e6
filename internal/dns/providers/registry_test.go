package providers

import (
	"context"
	"testing"

	"go_certhub/internal/dns"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Cloudflare(t *testing.T) {
	r := NewRegistry(Options{})

	p, err := r.New(context.Background(), dns.Credential{ID: 1, Type: dns.TypeCloudflare, SecretID: "cf-api-token", SecretKey: "zone-123"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestRegistry_Route53(t *testing.T) {
	r := NewRegistry(Options{})

	p, err := r.New(context.Background(), dns.Credential{ID: 2, Type: dns.TypeRoute53, SecretID: "AKIA", SecretKey: "secret"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestRegistry_UnsupportedType(t *testing.T) {
	r := NewRegistry(Options{})

	_, err := r.New(context.Background(), dns.Credential{ID: 3, Type: "dnspod"})
	require.Error(t, err)
	assert.Equal(t, dns.KindRejected, dns.KindOf(err))
}

func TestNewRegistry_DefaultRetry(t *testing.T) {
	r := NewRegistry(Options{})
	assert.Equal(t, dns.DefaultRetryPolicy, r.opts.Retry)
}
