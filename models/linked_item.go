package models

import (
	"time"

	"gorm.io/gorm"
)

// LinkedItem 一条聚合器连接（一次机构授权）
// SyncCursor 为空表示从未同步过；本服务只会推进它，不会回退
type LinkedItem struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	UserID         uint    `json:"user_id" gorm:"index;not null"`
	ExternalItemID string  `json:"external_item_id" gorm:"size:128;not null"`
	// AccessTokenEnc AES-GCM 加密后的访问令牌，base64(iv||密文)
	AccessTokenEnc  string         `json:"-" gorm:"size:4096;not null"`
	InstitutionID   string         `json:"institution_id" gorm:"size:128"`
	InstitutionName string         `json:"institution_name" gorm:"size:255"`
	SyncCursor      *string        `json:"sync_cursor,omitempty" gorm:"size:512"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

func (LinkedItem) TableName() string {
	return "linked_items"
}
