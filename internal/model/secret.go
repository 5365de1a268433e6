package model

import "time"

// Secret is an encrypted blob addressed by an opaque ref
type Secret struct {
	ID         string    `gorm:"type:char(36);primaryKey" json:"id"`
	KeyID      string    `gorm:"type:varchar(32);not null" json:"key_id"`
	Nonce      []byte    `gorm:"type:varbinary(24);not null" json:"-"`
	Ciphertext []byte    `gorm:"type:mediumblob;not null" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Secret
func (Secret) TableName() string {
	return "secrets"
}
