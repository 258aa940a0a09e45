package models

import (
	"time"

	"gorm.io/gorm"
)

// 类别收支类型
const (
	CategoryTypeExpense = "EXPENSE"
	CategoryTypeIncome  = "INCOME"
)

// Category 交易类别（按用户隔离）
type Category struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"size:50;not null"`
	Type      string         `json:"type" gorm:"size:20;not null;default:EXPENSE"` // EXPENSE | INCOME
	Color     string         `json:"color" gorm:"size:20;default:#64748b"`         // 颜色代码，如 #ef4444
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Category) TableName() string {
	return "categories"
}

// DefaultCategory 新用户的默认类别
type DefaultCategory struct {
	Name  string
	Type  string
	Color string
}

// GetDefaultCategories 获取默认类别（与聚合器的一级消费分类对齐）
func GetDefaultCategories() []DefaultCategory {
	return []DefaultCategory{
		{"Entertainment", CategoryTypeExpense, "#FB8C00"},
		{"Food & drink", CategoryTypeExpense, "#E53935"},
		{"General merchandise", CategoryTypeExpense, "#3949AB"},
		{"General services", CategoryTypeExpense, "#6D4C41"},
		{"Government & non-profit", CategoryTypeExpense, "#5E35B1"},
		{"Home improvement", CategoryTypeExpense, "#1E88E5"},
		{"Income", CategoryTypeIncome, "#00897B"},
		{"Loan payments", CategoryTypeExpense, "#546E7A"},
		{"Medical", CategoryTypeExpense, "#00838F"},
		{"Personal care", CategoryTypeExpense, "#D81B60"},
		{"Rent & utilities", CategoryTypeExpense, "#43A047"},
		{"Transfer in", CategoryTypeIncome, "#26A69A"},
		{"Transfer out", CategoryTypeExpense, "#26C6DA"},
		{"Transportation", CategoryTypeExpense, "#7CB342"},
		{"Travel", CategoryTypeExpense, "#F4511E"},
		{"Bank fees", CategoryTypeExpense, "#8E24AA"},
	}
}
