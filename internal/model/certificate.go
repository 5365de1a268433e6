package model

import (
	"time"

	"gorm.io/datatypes"
)

// Certificate represents a certificate ordered through an ACME account
type Certificate struct {
	BaseModel
	Domains           datatypes.JSONSlice[string] `gorm:"type:json;not null" json:"domains"`
	PrimaryDomain     string                      `gorm:"type:varchar(255);not null;index" json:"primary_domain"`
	KeyType           string                      `gorm:"type:varchar(16);not null" json:"key_type"`
	AccountID         int                         `gorm:"not null;index" json:"account_id"`
	DNSProviderID     int                         `gorm:"index" json:"dns_provider_id"`
	SessionID         string                      `gorm:"type:varchar(64);index" json:"session_id"`
	CertType          string                      `gorm:"type:varchar(8)" json:"cert_type"`
	CertStatus        string                      `gorm:"type:varchar(20);not null;default:not_issued;index" json:"cert_status"`
	IssuedAt          *time.Time                  `json:"issued_at"`
	ValidityDays      int                         `json:"validity_days"`
	SerialNumber      string                      `gorm:"type:varchar(128)" json:"serial_number"`
	Certificate       string                      `gorm:"type:mediumtext" json:"certificate,omitempty"`
	IssuerCertificate string                      `gorm:"type:mediumtext" json:"issuer_certificate,omitempty"`
	CSR               string                      `gorm:"type:text" json:"-"`
	PrivateKeyRef     string                      `gorm:"type:char(36)" json:"-"`
	OrderURL          string                      `gorm:"type:varchar(500)" json:"order_url"`
	CertURL           string                      `gorm:"type:varchar(500)" json:"cert_url"`
	CertStableURL     string                      `gorm:"type:varchar(500)" json:"cert_stable_url"`
	LastError         string                      `gorm:"type:text" json:"last_error"`
}

// TableName specifies the table name for Certificate
func (Certificate) TableName() string {
	return "certificates"
}

// Certificate status constants
const (
	CertStatusNotIssued = "not_issued"
	CertStatusIssued    = "issued"
	CertStatusExpired   = "expired"
	CertStatusRevoked   = "revoked"
)

// Certificate type constants
const (
	CertTypeDV = "DV"
	CertTypeOV = "OV"
	CertTypeEV = "EV"
)
