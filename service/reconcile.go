package service

import (
	"errors"
	"fmt"

	"finpilot/models"

	"gorm.io/gorm"
)

// UpsertAccount 按 (linkedItemID, externalAccountID) 幂等地创建或更新账户
// 已存在时只更新余额和展示名（最后写入生效），不改动其下的历史交易；
// 不存在时新建。重复调用安全
func UpsertAccount(db *gorm.DB, linkedItemID uint, snap AccountSnapshot) (*models.Account, error) {
	var account models.Account
	err := db.Where("linked_item_id = ? AND external_account_id = ?", linkedItemID, snap.ExternalAccountID).
		First(&account).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.Account{
			LinkedItemID:      linkedItemID,
			ExternalAccountID: snap.ExternalAccountID,
			DisplayName:       snap.Name,
			AccountType:       snap.Type,
			Balance:           snap.Balance,
		}
		if err := db.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("创建账户失败: %w", err)
		}
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}

	if err := db.Model(&account).Updates(map[string]interface{}{
		"display_name": snap.Name,
		"account_type": snap.Type,
		"balance":      snap.Balance,
	}).Error; err != nil {
		return nil, fmt.Errorf("更新账户失败: %w", err)
	}
	account.DisplayName = snap.Name
	account.AccountType = snap.Type
	account.Balance = snap.Balance
	return &account, nil
}
