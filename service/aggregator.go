package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finpilot/config"

	"github.com/shopspring/decimal"
)

// AccountSnapshot 聚合器返回的账户快照
type AccountSnapshot struct {
	ExternalAccountID string          `json:"account_id"`
	Name              string          `json:"name"`
	Type              string          `json:"type"`
	Balance           decimal.Decimal `json:"balance"`
}

// TransactionDelta 聚合器返回的单条交易增量
type TransactionDelta struct {
	ExternalTransactionID string          `json:"transaction_id"`
	ExternalAccountID     string          `json:"account_id"`
	Date                  string          `json:"date"` // 2006-01-02
	Amount                decimal.Decimal `json:"amount"`
	Name                  string          `json:"name"`
	CategoryHint          string          `json:"category_hint,omitempty"` // 聚合器一级分类，如 INCOME
	Pending               bool            `json:"pending"`
}

// RemovedDelta 聚合器标记删除的交易
type RemovedDelta struct {
	ExternalTransactionID string `json:"transaction_id"`
}

// DeltaPage 一次增量同步的响应
type DeltaPage struct {
	Accounts   []AccountSnapshot  `json:"accounts"`
	Added      []TransactionDelta `json:"added"`
	Modified   []TransactionDelta `json:"modified"`
	Removed    []RemovedDelta     `json:"removed"`
	NextCursor string             `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

// DeltaFetcher 增量拉取接口，便于测试替换
type DeltaFetcher interface {
	FetchDelta(accessToken, cursor string) (*DeltaPage, error)
}

// AggregatorClient 聚合器 HTTP 客户端
type AggregatorClient struct {
	cfg        *config.AggregatorConfig
	httpClient *http.Client
}

// NewAggregatorClient 创建聚合器客户端
func NewAggregatorClient(cfg *config.AggregatorConfig) *AggregatorClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AggregatorClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// syncRequest /transactions/sync 请求体
type syncRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
}

// FetchDelta 用游标拉取一批增量，cursor 为空表示首次同步
func (c *AggregatorClient) FetchDelta(accessToken, cursor string) (*DeltaPage, error) {
	payload, err := json.Marshal(syncRequest{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: accessToken,
		Cursor:      cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}

	req, err := http.NewRequest("POST", c.cfg.BaseURL+"/transactions/sync", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求聚合器失败: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// 聚合器错误响应带 error_message 字段
		var errResp struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		_ = json.Unmarshal(data, &errResp)
		msg := errResp.ErrorMessage
		if msg == "" {
			msg = string(data)
		}
		return nil, fmt.Errorf("聚合器返回错误（HTTP %d）: %s", resp.StatusCode, msg)
	}

	var page DeltaPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return &page, nil
}
