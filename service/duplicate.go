package service

import (
	"fmt"
	"time"

	"finpilot/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FindConflict 查找疑似重复的交易
// 判定条件：同一用户、同一天、金额完全相等（含符号）、商户名归一化后相等；
// excludeID 非空时排除该条记录（用于编辑时的冲突检查）。
// 注意：这里是手工记账用的模糊查重，与同步时按 external_transaction_id 的
// 精确去重是两套独立逻辑，不能混用
func FindConflict(db *gorm.DB, userID uint, date time.Time, amount decimal.Decimal, merchant string, excludeID *uint) (*models.Transaction, error) {
	merchantNorm := NormalizeMerchant(merchant)

	query := db.Where("user_id = ? AND date = ? AND amount = ?", userID, date.Format("2006-01-02"), amount)
	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}

	var candidates []models.Transaction
	if err := query.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("查询重复交易失败: %w", err)
	}

	// 商户名归一化比较放在应用层，保证与规则匹配用同一套归一化
	for i := range candidates {
		if NormalizeMerchant(candidates[i].Merchant) == merchantNorm {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
