package model

// DNSProvider holds the credential used to manage TXT records at a DNS vendor
type DNSProvider struct {
	BaseModel
	Name         string `gorm:"type:varchar(128);not null" json:"name"`
	Type         string `gorm:"type:varchar(32);not null;index" json:"type"`
	SecretID     string `gorm:"type:varchar(255)" json:"secret_id"` // masked when SecretIDRef is set
	SecretIDRef  string `gorm:"type:char(36)" json:"-"`
	SecretKeyRef string `gorm:"type:char(36);not null" json:"-"`
	Notes        string `gorm:"type:varchar(500)" json:"notes"`
}

// TableName specifies the table name for DNSProvider
func (DNSProvider) TableName() string {
	return "dns_providers"
}
