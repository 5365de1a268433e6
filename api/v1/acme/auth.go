package acme

import (
	"time"

	"go_certhub/api/v1/common"
	"go_certhub/internal/httpx"
	"go_certhub/internal/orchestrator"
	"go_certhub/internal/session"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authorization sessions and issuance
type AuthHandler struct {
	orch *orchestrator.Orchestrator
}

// NewAuthHandler creates a new authorization handler
func NewAuthHandler(orch *orchestrator.Orchestrator) *AuthHandler {
	return &AuthHandler{orch: orch}
}

// challengeView is one entry of info_list; the key authorization stays server-side
type challengeView struct {
	Domain        string `json:"domain"`
	EffectiveFQDN string `json:"EffectiveFQDN"`
	Value         string `json:"Value"`
	Status        string `json:"status"`
}

// sessionView is the client view of a session
type sessionView struct {
	ID            string          `json:"session_id"`
	AccountID     int             `json:"account_id"`
	Domains       []string        `json:"domains"`
	KeyType       string          `json:"key_type"`
	Mode          string          `json:"mode"`
	DNSProviderID int             `json:"dns_provider_id,omitempty"`
	CertificateID int             `json:"certificate_id"`
	Status        string          `json:"status"`
	LastError     string          `json:"last_error,omitempty"`
	InfoList      []challengeView `json:"info_list"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

func newSessionView(s *session.Session) sessionView {
	infos := make([]challengeView, 0, len(s.InfoList))
	for _, info := range s.InfoList {
		infos = append(infos, challengeView{
			Domain:        info.Domain,
			EffectiveFQDN: info.EffectiveFQDN,
			Value:         info.Value,
			Status:        info.Status,
		})
	}
	return sessionView{
		ID:            s.ID,
		AccountID:     s.AccountID,
		Domains:       s.Domains,
		KeyType:       s.KeyType,
		Mode:          s.Mode,
		DNSProviderID: s.DNSProviderID,
		CertificateID: s.CertificateID,
		Status:        s.Status,
		LastError:     s.LastError,
		InfoList:      infos,
		ExpiresAt:     s.ExpiresAt,
	}
}

// CreateAuthRequest is the body of POST /acme/auth
type CreateAuthRequest struct {
	AccountID     int      `json:"account_id" binding:"required"`
	Domains       []string `json:"domains" binding:"required,min=1"`
	KeyType       string   `json:"key_type" binding:"required"`
	Mode          string   `json:"mode"`
	DNSProviderID int      `json:"dns_provider_id"`
}

// Create creates the CA order and returns the challenge records to publish
// POST /api/v1/acme/auth
func (h *AuthHandler) Create(c *gin.Context) {
	var req CreateAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	s, err := h.orch.CreateAuth(c.Request.Context(), orchestrator.CreateAuthParams{
		AccountID:     req.AccountID,
		Domains:       req.Domains,
		KeyType:       req.KeyType,
		Mode:          req.Mode,
		DNSProviderID: req.DNSProviderID,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, newSessionView(s))
}

// IssueRequest is the body of POST /acme/auth/cert
type IssueRequest struct {
	SessionID     string   `json:"session_id"`
	AccountID     int      `json:"account_id"`
	Domains       []string `json:"domains"`
	KeyType       string   `json:"key_type"`
	Mode          string   `json:"mode" binding:"required,oneof=manual auto"`
	DNSProviderID int      `json:"dns_provider_id"`
}

// Issue fulfils the session's challenges and issues the certificate
// POST /api/v1/acme/auth/cert
func (h *AuthHandler) Issue(c *gin.Context) {
	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.SessionID == "" && (req.AccountID == 0 || len(req.Domains) == 0 || req.KeyType == "") {
		httpx.FailErr(c, httpx.ErrParamMissing("session_id or account_id, domains and key_type are required"))
		return
	}

	cert, err := h.orch.Issue(c.Request.Context(), orchestrator.IssueParams{
		SessionID:     req.SessionID,
		AccountID:     req.AccountID,
		Domains:       req.Domains,
		KeyType:       req.KeyType,
		Mode:          req.Mode,
		DNSProviderID: req.DNSProviderID,
	})
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, cert)
}

// Get returns a session
// GET /api/v1/acme/auth/:id
func (h *AuthHandler) Get(c *gin.Context) {
	s, err := h.orch.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, newSessionView(s))
}

// Abandon stops a session and removes records it published
// DELETE /api/v1/acme/auth/:id
func (h *AuthHandler) Abandon(c *gin.Context) {
	s, err := h.orch.Abandon(c.Request.Context(), c.Param("id"))
	if err != nil {
		common.Fail(c, err)
		return
	}

	httpx.OK(c, newSessionView(s))
}
