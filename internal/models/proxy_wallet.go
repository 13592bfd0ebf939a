package models

import "time"

// ProxyWallet is the permanent record of a derived proxy wallet. Deployment is
// monotonic: Deployed never flips back to false once set.
type ProxyWallet struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	OwnerAddress string `gorm:"type:varchar(42);not null;uniqueIndex"`
	ProxyAddress string `gorm:"type:varchar(42);not null;index"`
	Deployed     bool   `gorm:"not null;default:false"`

	CheckedAt time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ProxyWallet) TableName() string {
	return "proxy_wallets"
}
