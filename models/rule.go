package models

import (
	"time"

	"gorm.io/gorm"
)

// 规则匹配方式
const (
	MatchTypeContains = "CONTAINS"
	MatchTypeRegex    = "REGEX"
)

// Rule 自动分类规则（按用户隔离，priority 越小越先匹配）
type Rule struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	UserID     uint           `json:"user_id" gorm:"index;not null"`
	Pattern    string         `json:"pattern" gorm:"size:255;not null"`    // 子串或正则，如 "harris teeter"
	MatchType  string         `json:"match_type" gorm:"size:20;not null"`  // CONTAINS | REGEX
	CategoryID uint           `json:"category_id" gorm:"index;not null"`   // 命中后指定的类别
	Priority   int            `json:"priority" gorm:"not null;default:100"`
	Enabled    bool           `json:"enabled" gorm:"not null;default:true"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Rule) TableName() string {
	return "rules"
}
