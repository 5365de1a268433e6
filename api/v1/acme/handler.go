// Package acme serves ACME accounts, authorization sessions and certificates
package acme

import (
	"strconv"

	"go_certhub/api/v1/common"
	"go_certhub/internal/account"
	"go_certhub/internal/httpx"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles ACME account requests
type AccountHandler struct {
	service *account.Service
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(service *account.Service) *AccountHandler {
	return &AccountHandler{service: service}
}

// CreateAccountRequest is the body of POST /acme/accounts
type CreateAccountRequest struct {
	Name       string `json:"name" binding:"required"`
	KeyType    string `json:"key_type" binding:"required"`
	Server     string `json:"server" binding:"required"`
	Email      string `json:"email" binding:"required"`
	EabKeyID   string `json:"eab_kid"`
	EabHmacKey string `json:"eab_hmac_key"`
}

// Create registers a new account with the CA
// POST /api/v1/acme/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	acct, err := h.service.Register(c.Request.Context(), account.RegisterParams{
		Name:       req.Name,
		KeyType:    req.KeyType,
		Server:     req.Server,
		Email:      req.Email,
		EabKeyID:   req.EabKeyID,
		EabHmacKey: req.EabHmacKey,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, acct)
}

// List lists accounts
// GET /api/v1/acme/accounts?name=&status=&bind_eab=&page=&pageSize=
func (h *AccountHandler) List(c *gin.Context) {
	page, pageSize := common.Page(c)
	params := account.ListParams{
		Name:     c.Query("name"),
		Status:   c.Query("status"),
		Page:     page,
		PageSize: pageSize,
	}
	if v := c.Query("bind_eab"); v != "" {
		bind, err := strconv.ParseBool(v)
		if err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("bind_eab must be a boolean"))
			return
		}
		params.BindEAB = &bind
	}

	items, total, err := h.service.List(c.Request.Context(), params)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OKItems(c, items, total, page, pageSize)
}

// Get returns one account
// GET /api/v1/acme/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	acct, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, acct)
}

// Delete removes an account not referenced by issued certificates
// DELETE /api/v1/acme/accounts/:id
func (h *AccountHandler) Delete(c *gin.Context) {
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

// Deactivate deactivates the account at the CA
// POST /api/v1/acme/accounts/:id/deactivate
func (h *AccountHandler) Deactivate(c *gin.Context) {
	id, ok := common.ParamID(c)
	if !ok {
		return
	}

	acct, err := h.service.Deactivate(c.Request.Context(), id)
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, acct)
}
