package common

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"go_certhub/internal/account"
	"go_certhub/internal/acme"
	"go_certhub/internal/dns"
	"go_certhub/internal/httpx"
	"go_certhub/internal/orchestrator"
	"go_certhub/internal/session"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"validation", fmt.Errorf("%w: bad", orchestrator.ErrInvalidParam), http.StatusBadRequest, httpx.CodeParamIllegal},
		{"not found", fmt.Errorf("%w: id=1", account.ErrNotFound), http.StatusNotFound, httpx.CodeNotFound},
		{"session gone", session.ErrNotFound, http.StatusNotFound, httpx.CodeNotFound},
		{"conflict", orchestrator.ErrStateConflict, http.StatusConflict, httpx.CodeStateConflict},
		{"timeout", acme.Timeout("authorization", nil), http.StatusGatewayTimeout, httpx.CodeTimeout},
		{"dns", dns.NewError(dns.TypeCloudflare, dns.KindAuth, "10000", errors.New("denied")), http.StatusBadGateway, httpx.CodeDNSProviderError},
		{"ca", &acme.Error{Kind: acme.KindRevocation, Err: errors.New("nope")}, http.StatusBadGateway, httpx.CodeCAError},
		{"other", errors.New("boom"), http.StatusInternalServerError, httpx.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AppError(tt.err)
			assert.Equal(t, tt.status, got.HTTPStatus)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestAppError_Data(t *testing.T) {
	dnsErr := AppError(dns.NewError(dns.TypeAliyun, dns.KindRateLimit, "Throttling", errors.New("slow down")))
	problem, ok := dnsErr.Data.(*httpx.DNSProblem)
	require.True(t, ok)
	assert.Equal(t, httpx.DNSProblem{Provider: dns.TypeAliyun, Kind: "rate_limit", Code: "Throttling"}, *problem)

	caErr := AppError(&acme.Error{
		Kind:    acme.KindRegistration,
		Problem: &legoacme.ProblemDetails{Type: "urn:ietf:params:acme:error:externalAccountRequired", Detail: "eab required", HTTPStatus: 400},
		Err:     errors.New("rejected"),
	})
	ca, ok := caErr.Data.(*httpx.CAProblem)
	require.True(t, ok)
	assert.Equal(t, "urn:ietf:params:acme:error:externalAccountRequired", ca.Type)
	assert.Equal(t, 400, ca.Status)
}
