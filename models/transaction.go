package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction 账单流水
// Amount 的符号约定：正数为收入（流入），负数为支出（流出）
type Transaction struct {
	ID     uint      `json:"id" gorm:"primaryKey"`
	UserID uint      `json:"user_id" gorm:"index;not null;uniqueIndex:idx_tx_user_external,priority:1"`
	Date   time.Time `json:"date" gorm:"type:date;not null"`
	// Amount 固定两位小数的带符号金额
	Amount   decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Merchant string          `json:"merchant" gorm:"size:255;not null"`
	// CategoryID 类别外键，分类的唯一事实来源（不再冗余存储类别名称）
	CategoryID *uint `json:"category_id" gorm:"index"`
	// CategoryLocked 为 true 时任何自动分类不得覆盖 CategoryID
	CategoryLocked bool `json:"category_locked" gorm:"not null;default:false"`
	// AccountID 所属账户，手工记账未关联账户时为空
	AccountID *uint `json:"account_id" gorm:"index"`
	// ExternalTransactionID 聚合器侧交易ID，同步去重依据，同一用户内唯一（NULL 不参与唯一约束）
	ExternalTransactionID *string        `json:"external_transaction_id,omitempty" gorm:"size:128;uniqueIndex:idx_tx_user_external,priority:2"`
	Pending               bool           `json:"pending" gorm:"not null;default:false"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	DeletedAt             gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Transaction) TableName() string {
	return "transactions"
}
