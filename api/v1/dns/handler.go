// Package dns serves DNS vendor credentials
package dns

import (
	"go_certhub/api/v1/common"
	"go_certhub/internal/dns"
	"go_certhub/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler handles DNS provider credential requests
type Handler struct {
	service *dns.Service
}

// NewHandler creates a new DNS provider handler
func NewHandler(service *dns.Service) *Handler {
	return &Handler{service: service}
}

// CreateRequest is the body of POST /dns/provider
type CreateRequest struct {
	Name      string `json:"name" binding:"required"`
	Type      string `json:"type" binding:"required"`
	SecretID  string `json:"secret_id" binding:"required"`
	SecretKey string `json:"secret_key" binding:"required"`
	Notes     string `json:"notes"`
}

// Create stores a new credential
// POST /api/v1/dns/provider
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	provider, err := h.service.Create(c.Request.Context(), dns.CreateParams{
		Name:      req.Name,
		Type:      req.Type,
		SecretID:  req.SecretID,
		SecretKey: req.SecretKey,
		Notes:     req.Notes,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, provider)
}

// UpdateRequest is the body of PATCH /dns/provider/:id; absent fields are kept
type UpdateRequest struct {
	Name      *string `json:"name"`
	Type      *string `json:"type"`
	SecretID  *string `json:"secret_id"`
	SecretKey *string `json:"secret_key"`
	Notes     *string `json:"notes"`
}

// Update applies a partial update
// PATCH /api/v1/dns/provider/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	provider, err := h.service.Update(c.Request.Context(), id, dns.UpdateParams{
		Name:      req.Name,
		Type:      req.Type,
		SecretID:  req.SecretID,
		SecretKey: req.SecretKey,
		Notes:     req.Notes,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, provider)
}

// List lists credentials without secret keys
// GET /api/v1/dns/provider?name=&type=&page=&pageSize=
func (h *Handler) List(c *gin.Context) {
	page, pageSize := common.Page(c)

	items, total, err := h.service.List(c.Request.Context(), dns.ListParams{
		Name:     c.Query("name"),
		Type:     c.Query("type"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OKItems(c, items, total, page, pageSize)
}

// Get returns one credential without its secret key
// GET /api/v1/dns/provider/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	provider, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, provider)
}

// Delete removes a credential and its encrypted key
// DELETE /api/v1/dns/provider/:id
func (h *Handler) Delete(c *gin.Context) {
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

// Secrets reveals the credential pair
// GET /api/v1/dns/provider/:id/secrets
func (h *Handler) Secrets(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	secrets, err := h.service.Reveal(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, secrets)
}

// Types lists the supported vendors
// GET /api/v1/dns/provider/types
func (h *Handler) Types(c *gin.Context) {
	httpx.OK(c, dns.Vendors())
}
