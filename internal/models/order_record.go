package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderRecord is the server's own journal of order submissions: every request
// that reached the sanitizer is recorded with its terminal outcome.
type OrderRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	RequestID   string `gorm:"type:varchar(36);uniqueIndex"`
	ClientID    string `gorm:"type:varchar(64);index"`
	ClobOrderID string `gorm:"type:varchar(100);index"`
	TokenID     string `gorm:"type:varchar(100);not null;index"`

	Maker     string `gorm:"type:varchar(42);not null;index"`
	Funder    string `gorm:"type:varchar(42)"`
	OrderType string `gorm:"type:varchar(10);not null;default:'FOK'"`

	Price decimal.Decimal `gorm:"type:numeric(20,10)"`
	Size  decimal.Decimal `gorm:"type:numeric(30,10)"`

	Status        string `gorm:"type:varchar(20);not null;default:'pending';index"`
	FailureCode   string `gorm:"type:varchar(40)"`
	FailureDetail string `gorm:"type:text"`

	UpstreamResponse datatypes.JSON `gorm:"type:jsonb"`

	SubmittedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (OrderRecord) TableName() string {
	return "order_records"
}
