package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"go_certhub/internal/model"

	"github.com/go-acme/lego/v4/certcrypto"
)

const day = 24 * time.Hour

// CA/Browser Forum extended validation policy
var oidEVPolicy = asn1.ObjectIdentifier{2, 23, 140, 1, 1}

// Info is the metadata read from an issued leaf certificate
type Info struct {
	SerialNumber string
	Fingerprint  string
	Issuer       string
	CertType     string
	IssuedAt     time.Time
	NotAfter     time.Time
	ValidityDays int
}

// ParseInfo reads the first certificate of a PEM chain
func ParseInfo(certPEM []byte) (*Info, error) {
	leaf, err := certcrypto.ParsePEMCertificate(certPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	sum := sha256.Sum256(leaf.Raw)
	return &Info{
		SerialNumber: leaf.SerialNumber.Text(16),
		Fingerprint:  hex.EncodeToString(sum[:]),
		Issuer:       leaf.Issuer.CommonName,
		CertType:     certType(leaf),
		IssuedAt:     leaf.NotBefore,
		NotAfter:     leaf.NotAfter,
		ValidityDays: int(math.Ceil(leaf.NotAfter.Sub(leaf.NotBefore).Hours() / 24)),
	}, nil
}

func certType(leaf *x509.Certificate) string {
	for _, oid := range leaf.Policies {
		if oid.EqualASN1OID(oidEVPolicy) {
			return model.CertTypeEV
		}
	}
	if len(leaf.Subject.Organization) == 0 {
		return model.CertTypeDV
	}
	return model.CertTypeOV
}

// ComputeRemainingDays returns the whole days left until issuedAt +
// validityDays, rounded up and clamped at 0.
func ComputeRemainingDays(issuedAt time.Time, validityDays int, now time.Time) int {
	left := issuedAt.Add(time.Duration(validityDays) * day).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(float64(left) / float64(day)))
}

// RemainingDays is nil for certificates that were never issued and 0 for
// revoked or expired ones.
func RemainingDays(c *model.Certificate, now time.Time) *int {
	var days int
	switch c.CertStatus {
	case model.CertStatusNotIssued:
		return nil
	case model.CertStatusRevoked, model.CertStatusExpired:
		days = 0
	default:
		if c.IssuedAt == nil {
			return nil
		}
		days = ComputeRemainingDays(*c.IssuedAt, c.ValidityDays, now)
	}
	return &days
}

// DisplayStatus derives "expired" from the dates; revoked always wins
func DisplayStatus(c *model.Certificate, now time.Time) string {
	if c.CertStatus == model.CertStatusIssued && c.IssuedAt != nil &&
		ComputeRemainingDays(*c.IssuedAt, c.ValidityDays, now) == 0 {
		return model.CertStatusExpired
	}
	return c.CertStatus
}
