package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account 聚合器同步下来的金融账户
// (LinkedItemID, ExternalAccountID) 在同一连接内唯一，余额为最后写入生效
type Account struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	LinkedItemID      uint            `json:"linked_item_id" gorm:"not null;uniqueIndex:idx_account_item_external,priority:1"`
	ExternalAccountID string          `json:"external_account_id" gorm:"size:128;not null;uniqueIndex:idx_account_item_external,priority:2"`
	DisplayName       string          `json:"display_name" gorm:"size:255"`
	AccountType       string          `json:"account_type" gorm:"size:50"` // 如 depository/credit/loan
	Balance           decimal.Decimal `json:"balance" gorm:"type:decimal(10,2);not null;default:0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (Account) TableName() string {
	return "accounts"
}
