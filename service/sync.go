package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"finpilot/models"

	"gorm.io/gorm"
)

// SyncResult 单个连接一次同步的结果
type SyncResult struct {
	Created   int  `json:"created"`
	Modified  int  `json:"modified"`
	Removed   int  `json:"removed"`
	Skipped   int  `json:"skipped"`
	FirstSync bool `json:"first_sync"`
}

// SyncAllResult 一个用户全部连接的同步汇总
type SyncAllResult struct {
	Items    int        `json:"items"`
	Failed   int        `json:"failed"`
	Total    SyncResult `json:"total"`
	Failures []string   `json:"failures,omitempty"`
}

// SyncEngine 游标增量同步引擎
// 同一连接的并发同步需由调用方串行化（同一时刻每个连接最多一次同步在途）
type SyncEngine struct {
	db      *gorm.DB
	fetcher DeltaFetcher
	cipher  *TokenCipher
}

// NewSyncEngine 创建同步引擎
func NewSyncEngine(db *gorm.DB, fetcher DeltaFetcher, cipher *TokenCipher) *SyncEngine {
	return &SyncEngine{db: db, fetcher: fetcher, cipher: cipher}
}

// Sync 对一个连接执行一轮游标同步
// 流程：取连接 → 解密令牌 → 按存量游标拉增量 → 拉取成功后立即保存新游标 →
// 先落账户快照，再逐条处理新增交易（按 external_transaction_id 精确去重）。
// 游标只在拉取成功后推进一次；处理途中崩溃不会跳过记录，下次调用重放同一窗口
func (e *SyncEngine) Sync(userID, itemID uint) (*SyncResult, error) {
	var item models.LinkedItem
	err := e.db.Where("id = ? AND user_id = ?", itemID, userID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询连接失败: %w", err)
	}

	// 在推进游标之前先记住旧值，用于 firstSync 判断
	prevCursor := ""
	if item.SyncCursor != nil {
		prevCursor = *item.SyncCursor
	}

	accessToken, err := e.cipher.Decrypt(item.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("解密访问令牌失败: %w", err)
	}

	page, err := e.fetcher.FetchDelta(accessToken, prevCursor)
	if err != nil {
		// 拉取失败不推进游标，下次调用重试同一窗口
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// 拉取成功后立即保存新游标，再处理数据
	if err := e.db.Model(&item).Update("sync_cursor", page.NextCursor).Error; err != nil {
		return nil, fmt.Errorf("保存同步游标失败: %w", err)
	}

	result := &SyncResult{
		Modified:  len(page.Modified),
		Removed:   len(page.Removed),
		FirstSync: prevCursor == "",
	}

	// 账户快照先于交易处理落库，幂等可重复
	accountIDs := make(map[string]uint, len(page.Accounts))
	for _, snap := range page.Accounts {
		account, err := UpsertAccount(e.db, item.ID, snap)
		if err != nil {
			return nil, err
		}
		accountIDs[snap.ExternalAccountID] = account.ID
	}

	for _, delta := range page.Added {
		created, err := e.ingestAdded(userID, delta, accountIDs)
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	if page.HasMore {
		log.Printf("连接 %d 还有更多增量待拉取，可再次触发同步", item.ID)
	}

	// modified/removed 当前仅计数，不回写本地记录
	return result, nil
}

// ingestAdded 处理一条新增交易，返回是否实际创建
func (e *SyncEngine) ingestAdded(userID uint, delta TransactionDelta, accountIDs map[string]uint) (bool, error) {
	if delta.ExternalTransactionID == "" {
		log.Printf("增量缺少 transaction_id，跳过: %q", delta.Name)
		return false, nil
	}

	// 同步去重：同一用户下 external_transaction_id 精确匹配即跳过
	var existing models.Transaction
	err := e.db.Where("user_id = ? AND external_transaction_id = ?", userID, delta.ExternalTransactionID).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("查询已同步交易失败: %w", err)
	}

	date, err := time.ParseInLocation("2006-01-02", delta.Date, time.Local)
	if err != nil {
		log.Printf("增量 %s 日期格式非法 %q，跳过", delta.ExternalTransactionID, delta.Date)
		return false, nil
	}

	// 符号约定：正数为收入、负数为支出。带分类提示时由提示决定符号
	// （INCOME 为正，其余为负）；无提示时按聚合器给的符号原样入库
	amount := delta.Amount
	if delta.CategoryHint != "" {
		if strings.EqualFold(delta.CategoryHint, "INCOME") {
			amount = amount.Abs()
		} else {
			amount = amount.Abs().Neg()
		}
	}

	externalID := delta.ExternalTransactionID
	tx := models.Transaction{
		UserID:                userID,
		Date:                  date,
		Amount:                amount,
		Merchant:              strings.TrimSpace(delta.Name),
		ExternalTransactionID: &externalID,
		Pending:               delta.Pending,
	}
	if accountID, ok := accountIDs[delta.ExternalAccountID]; ok {
		tx.AccountID = &accountID
	}

	// 聚合器分类提示能对应到用户自己的类别时直接采用（不加锁，仍可被改），
	// 否则走规则引擎；规则命中会设置类别并加锁
	if !e.applyCategoryHint(&tx, delta.CategoryHint) {
		if err := ApplyIfUnlocked(e.db, &tx); err != nil {
			// 规则加载失败不应中断整轮同步，留空类别继续入库
			log.Printf("交易 %s 自动分类失败: %v", delta.ExternalTransactionID, err)
		}
	}

	if err := e.db.Create(&tx).Error; err != nil {
		return false, fmt.Errorf("写入交易失败: %w", err)
	}
	return true, nil
}

// applyCategoryHint 尝试把聚合器的分类提示映射到用户自己的类别，成功返回 true
func (e *SyncEngine) applyCategoryHint(tx *models.Transaction, hint string) bool {
	if hint == "" {
		return false
	}
	var cat models.Category
	err := e.db.Where("user_id = ? AND LOWER(name) = ?", tx.UserID, strings.ToLower(strings.TrimSpace(hint))).
		First(&cat).Error
	if err != nil {
		return false
	}
	id := cat.ID
	tx.CategoryID = &id
	return true
}

// SyncAll 同步一个用户的全部连接
// 单个连接失败只记日志并计入 failed，不影响其余连接
func (e *SyncEngine) SyncAll(userID uint) (*SyncAllResult, error) {
	var items []models.LinkedItem
	if err := e.db.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("查询连接列表失败: %w", err)
	}

	result := &SyncAllResult{Items: len(items)}
	for _, item := range items {
		r, err := e.Sync(userID, item.ID)
		if err != nil {
			log.Printf("连接 %d 同步失败: %v", item.ID, err)
			result.Failed++
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", item.InstitutionName, err))
			continue
		}
		result.Total.Created += r.Created
		result.Total.Modified += r.Modified
		result.Total.Removed += r.Removed
		result.Total.Skipped += r.Skipped
	}
	return result, nil
}
