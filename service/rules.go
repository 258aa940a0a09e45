package service

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"finpilot/models"

	"gorm.io/gorm"
)

// NormalizeMerchant 商户名归一化：小写、去首尾空白、去掉逗号和句点
// 所有比较商户名的地方（同步入库、手工记账、规则测试、查重）必须统一走这里，
// 否则会出现“规则测试能命中、线上不命中”的问题
func NormalizeMerchant(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	return s
}

// RuleMatches 判断单条规则是否命中已归一化的商户名
// 正则编译失败等异常一律视为不命中，绝不中断其余规则的匹配
func RuleMatches(merchantNorm string, rule models.Rule) bool {
	pattern := rule.Pattern
	if strings.TrimSpace(pattern) == "" || rule.MatchType == "" {
		return false
	}

	switch strings.ToUpper(rule.MatchType) {
	case models.MatchTypeContains:
		return strings.Contains(merchantNorm, NormalizeMerchant(pattern))
	case models.MatchTypeRegex:
		// 大小写不敏感的部分匹配（search 语义，非全串匹配）
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			log.Printf("规则 %d 正则编译失败，按不命中处理: %v", rule.ID, err)
			return false
		}
		return re.MatchString(merchantNorm)
	default:
		// 未知匹配类型按不命中处理
		return false
	}
}

// AssignCategory 按优先级匹配规则，返回第一条命中的规则指定的类别
// 规则按 priority 升序、同优先级按 id 升序评估，保证多次调用结果一致
// 未命中返回 (nil, false, nil)；加载规则失败向上返回错误
func AssignCategory(db *gorm.DB, userID uint, merchant string) (*models.Category, bool, error) {
	merchantNorm := NormalizeMerchant(merchant)

	var rules []models.Rule
	if err := db.Where("user_id = ? AND enabled = ?", userID, true).
		Order("priority ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, false, fmt.Errorf("加载分类规则失败: %w", err)
	}

	for _, rule := range rules {
		if !RuleMatches(merchantNorm, rule) {
			continue
		}
		var cat models.Category
		err := db.Where("id = ? AND user_id = ?", rule.CategoryID, userID).First(&cat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 规则指向的类别已被删除，跳过继续匹配
			log.Printf("规则 %d 指向的类别 %d 不存在，跳过", rule.ID, rule.CategoryID)
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("加载类别失败: %w", err)
		}
		return &cat, true, nil
	}
	return nil, false, nil
}

// ApplyIfUnlocked 对未锁定的交易执行自动分类
// 已锁定（categoryLocked=true）的交易完全不动；命中规则后设置类别并加锁，
// 设置与加锁必须一起生效，持久化由调用方负责
func ApplyIfUnlocked(db *gorm.DB, tx *models.Transaction) error {
	if tx == nil || tx.CategoryLocked {
		return nil
	}

	cat, matched, err := AssignCategory(db, tx.UserID, tx.Merchant)
	if err != nil {
		return err
	}
	if matched {
		id := cat.ID
		tx.CategoryID = &id
		tx.CategoryLocked = true // 规则已做出决定，锁定避免后续自动覆盖
	}
	return nil
}
