package acme

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go_certhub/api/v1/common"
	"go_certhub/internal/cert"
	"go_certhub/internal/httpx"

	"github.com/gin-gonic/gin"
)

// CertificateHandler handles certificate requests
type CertificateHandler struct {
	service *cert.Service
}

// NewCertificateHandler creates a new certificate handler
func NewCertificateHandler(service *cert.Service) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// List lists certificates
// GET /api/v1/acme/certificates?domains=&cert_type=&cert_status=&account_id=&page=&pageSize=
func (h *CertificateHandler) List(c *gin.Context) {
	page, pageSize := common.Page(c)
	params := cert.ListParams{
		Domains:    c.Query("domains"),
		CertType:   c.Query("cert_type"),
		CertStatus: c.Query("cert_status"),
		Page:       page,
		PageSize:   pageSize,
	}
	if v := c.Query("account_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("account_id must be an integer"))
			return
		}
		params.AccountID = id
	}

	items, total, err := h.service.List(c.Request.Context(), params)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OKItems(c, items, total, page, pageSize)
}

// Get returns one certificate
// GET /api/v1/acme/certificates/:id
func (h *CertificateHandler) Get(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	item, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, item)
}

// Covering lists issued certificates covering every host
// GET /api/v1/acme/certificates/covering?hosts=a.example.com,b.example.com
func (h *CertificateHandler) Covering(c *gin.Context) {
	hosts := strings.Split(c.Query("hosts"), ",")
	filtered := hosts[:0]
	for _, host := range hosts {
		if host = strings.TrimSpace(host); host != "" {
			filtered = append(filtered, host)
		}
	}
	if len(filtered) == 0 {
		httpx.FailErr(c, httpx.ErrParamMissing("hosts is required"))
		return
	}

	items, err := h.service.Covering(c.Request.Context(), filtered)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, items)
}

// attachmentName turns a primary domain into a file name
func attachmentName(primary, suffix string) string {
	return strings.ReplaceAll(primary, "*", "_") + suffix
}

func attachment(c *gin.Context, name, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, contentType, body)
}

// Chain downloads the leaf and issuer chain
// GET /api/v1/acme/certificates/:id/chain
func (h *CertificateHandler) Chain(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	primary, chain, err := h.service.Chain(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	attachment(c, attachmentName(primary, "_chain.pem"), "application/x-pem-file", chain)
}

// PrivateKey downloads the certificate key
// GET /api/v1/acme/certificates/:id/private_key
func (h *CertificateHandler) PrivateKey(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	primary, key, err := h.service.PrivateKey(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	attachment(c, attachmentName(primary, ".key"), "application/x-pem-file", key)
}

// PrivateKeyContent returns the certificate key as JSON
// GET /api/v1/acme/certificates/:id/private-key-content
func (h *CertificateHandler) PrivateKeyContent(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	_, key, err := h.service.PrivateKey(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, gin.H{"private_key": string(key)})
}

// Revoke revokes an issued certificate at the CA
// POST /api/v1/acme/certificates/:id/revoke
func (h *CertificateHandler) Revoke(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	item, err := h.service.Revoke(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, item)
}

// Delete removes a certificate and its key
// DELETE /api/v1/acme/certificates/:id
func (h *CertificateHandler) Delete(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, gin.H{"id": id})
}
