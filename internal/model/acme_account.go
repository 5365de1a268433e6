package model

// AcmeAccount represents an account registered with an ACME CA
type AcmeAccount struct {
	BaseModel
	Name       string `gorm:"type:varchar(128);not null" json:"name"`
	KeyType    string `gorm:"type:varchar(16);not null" json:"key_type"`
	KeyRef     string `gorm:"type:char(36);not null" json:"-"` // secret store ref of the account key PEM
	Server     string `gorm:"type:varchar(500);not null" json:"server"`
	Email      string `gorm:"type:varchar(255);not null;index" json:"email"`
	URI        string `gorm:"type:varchar(500)" json:"uri"`
	Status     string `gorm:"type:varchar(20);not null;default:valid;index" json:"status"`
	EabKeyID   string `gorm:"type:varchar(255)" json:"eab_kid"`
	EabHmacRef string `gorm:"type:char(36)" json:"-"`
}

// TableName specifies the table name for AcmeAccount
func (AcmeAccount) TableName() string {
	return "acme_accounts"
}

// AcmeAccount status constants
const (
	AcmeAccountStatusValid       = "valid"
	AcmeAccountStatusDeactivated = "deactivated"
	AcmeAccountStatusRevoked     = "revoked"
)

// BindEAB reports whether the account was registered with external account binding
func (a *AcmeAccount) BindEAB() bool {
	return a.EabKeyID != ""
}
