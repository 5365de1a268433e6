package dns

import (
	"context"
	"fmt"
)

// Supported DNS vendor types
const (
	TypeTencentCloud = "tencentcloud"
	TypeAliyun       = "aliyun"
	TypeHuaweiCloud  = "huaweicloud"
	TypeBaiduCloud   = "baiducloud"
	TypeCloudflare   = "cloudflare"
	TypeGoDaddy      = "godaddy"
	TypeRoute53      = "route53"
)

// VendorInfo describes how a vendor maps onto secret_id/secret_key.
// SecretIDSensitive marks vendors whose secret_id is itself a credential;
// it is then stored encrypted and only shown masked.
type VendorInfo struct {
	Type              string `json:"type"`
	DisplayName       string `json:"display_name"`
	SecretIDLabel     string `json:"secret_id_label"`
	SecretKeyLabel    string `json:"secret_key_label"`
	SecretIDSensitive bool   `json:"secret_id_sensitive"`
}

var vendors = []VendorInfo{
	{TypeTencentCloud, "Tencent Cloud", "TENCENT_SECRET_ID", "TENCENT_SECRET_KEY", false},
	{TypeAliyun, "Aliyun", "ALIYUN_ACCESS_KEY_ID", "ALIYUN_ACCESS_KEY_SECRET", false},
	{TypeHuaweiCloud, "Huawei Cloud", "HUAWEICLOUD_ACCESS_KEY_ID", "HUAWEICLOUD_SECRET_ACCESS_KEY", false},
	{TypeBaiduCloud, "Baidu Cloud", "BAIDUCLOUD_ACCESS_KEY_ID", "BAIDUCLOUD_SECRET_ACCESS_KEY", false},
	{TypeCloudflare, "Cloudflare", "CLOUDFLARE_API_TOKEN", "CLOUDFLARE_ZONE_ID", true},
	{TypeGoDaddy, "GoDaddy", "GODADDY_API_KEY", "GODADDY_API_SECRET", false},
	{TypeRoute53, "AWS Route53", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", false},
}

// Vendors returns the supported vendor table
func Vendors() []VendorInfo {
	out := make([]VendorInfo, len(vendors))
	copy(out, vendors)
	return out
}

// SecretIDSensitive reports whether secret_id of vendor t must be encrypted
func SecretIDSensitive(t string) bool {
	for _, v := range vendors {
		if v.Type == t {
			return v.SecretIDSensitive
		}
	}
	return false
}

// IsValidType reports whether t is a supported vendor type
func IsValidType(t string) bool {
	for _, v := range vendors {
		if v.Type == t {
			return true
		}
	}
	return false
}

// Credential is a decrypted vendor credential, tagged by Type
type Credential struct {
	ID        int
	Type      string
	SecretID  string
	SecretKey string
}

// String never prints the secret key, nor a sensitive secret id
func (c Credential) String() string {
	id := c.SecretID
	if SecretIDSensitive(c.Type) {
		id = MaskSecret(id)
	}
	return fmt.Sprintf("Credential{ID:%d Type:%s SecretID:%s SecretKey:***}", c.ID, c.Type, id)
}

// TXTRecord is one DNS-01 record to publish
type TXTRecord struct {
	Domain  string // authorization identifier, without wildcard prefix
	FQDN    string // effective record name, with trailing dot
	Value   string
	Token   string
	KeyAuth string
}

// RecordHandle identifies a created record well enough to delete it later.
// It is serialized into the authorization session.
type RecordHandle struct {
	Provider string `json:"provider"`
	Domain   string `json:"domain"`
	FQDN     string `json:"fqdn"`
	Value    string `json:"value"`
	Token    string `json:"token,omitempty"`
	KeyAuth  string `json:"key_auth,omitempty"`
	ZoneID   string `json:"zone_id,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// Provider creates and deletes DNS-01 TXT records at one vendor using the
// credential it was built with.
type Provider interface {
	// CreateTXTRecord publishes rec and returns a handle for DeleteTXTRecord
	CreateTXTRecord(ctx context.Context, rec TXTRecord) (*RecordHandle, error)

	// DeleteTXTRecord removes the record; a record that no longer exists is not an error
	DeleteTXTRecord(ctx context.Context, handle *RecordHandle) error
}

// MaskSecret keeps the last four characters of s
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
