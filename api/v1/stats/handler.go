// Package stats serves the dashboard summary
package stats

import (
	"go_certhub/api/v1/common"
	"go_certhub/internal/account"
	"go_certhub/internal/cert"
	"go_certhub/internal/dns"
	"go_certhub/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler handles dashboard requests
type Handler struct {
	accounts *account.Service
	certs    *cert.Service
	dns      *dns.Service
}

// NewHandler creates a new stats handler
func NewHandler(accounts *account.Service, certs *cert.Service, dnsService *dns.Service) *Handler {
	return &Handler{accounts: accounts, certs: certs, dns: dnsService}
}

// Summary is the dashboard payload
type Summary struct {
	Accounts     *account.Stats `json:"accounts"`
	DNSProviders []dns.TypeStat `json:"dns_providers"`
	Certificates *cert.Stats    `json:"certificates"`
}

// Get returns account, DNS provider and certificate counts
// GET /api/v1/stats
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	accounts, err := h.accounts.Stats(ctx)
	if err != nil {
		common.Fail(c, err)
		return
	}
	providers, err := h.dns.Stats(ctx)
	if err != nil {
		common.Fail(c, err)
		return
	}
	certs, err := h.certs.Stats(ctx)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, Summary{Accounts: accounts, DNSProviders: providers, Certificates: certs})
}
