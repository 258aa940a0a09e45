package service

import (
	"errors"
	"fmt"
	"time"

	"finpilot/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound 记录不存在或不属于当前用户
	ErrNotFound = errors.New("记录不存在")
	// ErrUpstream 聚合器调用失败，仅影响当前连接的本次同步
	ErrUpstream = errors.New("聚合器调用失败")
)

// DuplicateCandidate 触发重复冲突的候选记录
type DuplicateCandidate struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Merchant string          `json:"merchant"`
}

// DuplicateError 重复交易冲突，携带已存在记录供客户端展示
type DuplicateError struct {
	Existing  *models.Transaction `json:"existing"`
	Candidate DuplicateCandidate  `json:"candidate"`
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("存在重复交易（id=%d）", e.Existing.ID)
}
