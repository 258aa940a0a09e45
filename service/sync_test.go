package service

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"finpilot/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher 按调用顺序返回预置的增量页或错误
type fakeFetcher struct {
	pages   []*DeltaPage
	errs    []error
	calls   int
	tokens  []string
	cursors []string
}

func (f *fakeFetcher) FetchDelta(accessToken, cursor string) (*DeltaPage, error) {
	i := f.calls
	f.calls++
	f.tokens = append(f.tokens, accessToken)
	f.cursors = append(f.cursors, cursor)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.pages[i], nil
}

func testCipher(t *testing.T) *TokenCipher {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
	cipher, err := NewTokenCipher(key)
	require.NoError(t, err)
	return cipher
}

func linkedItemRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "external_item_id", "access_token_enc", "institution_id", "institution_name", "sync_cursor"})
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "linked_item_id", "external_account_id", "display_name", "account_type", "balance"})
}

func TestSync_FirstSync(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	cipher := testCipher(t)
	enc, err := cipher.Encrypt("access-token-1")
	require.NoError(t, err)

	// 连接存在且属于当前用户，游标为空（首次同步）
	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(3), uint(1)).
		WillReturnRows(linkedItemRows().AddRow(3, 1, "item-ext-3", enc, "ins_1", "Demo Bank", nil))

	// 拉取成功后立刻保存新游标
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `linked_items`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 账户快照：之前没见过，走创建
	mock.ExpectQuery("SELECT .* FROM `accounts`").
		WithArgs(uint(3), "acc-1").
		WillReturnRows(accountRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `accounts`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	// txn-1：全新、无分类提示 → 走规则引擎（无规则）后入库
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "txn-1").
		WillReturnRows(transactionRows())
	mock.ExpectQuery("SELECT .* FROM `rules`").
		WithArgs(uint(1), true).
		WillReturnRows(ruleRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnResult(sqlmock.NewResult(101, 1))
	mock.ExpectCommit()

	// txn-2：带 Income 提示 → 映射到用户类别，不再走规则引擎
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "txn-2").
		WillReturnRows(transactionRows())
	mock.ExpectQuery("SELECT .* FROM `categories`").
		WithArgs(uint(1), "income").
		WillReturnRows(categoryRows().AddRow(7, 1, "Income", models.CategoryTypeIncome, "#00897B"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnResult(sqlmock.NewResult(102, 1))
	mock.ExpectCommit()

	// txn-3：external_transaction_id 已存在 → 跳过
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "txn-3").
		WillReturnRows(transactionRows().AddRow(50, 1, time.Now(), "-9.99", "Old", false))

	fetcher := &fakeFetcher{pages: []*DeltaPage{{
		Accounts: []AccountSnapshot{
			{ExternalAccountID: "acc-1", Name: "Checking", Type: "depository", Balance: decimal.NewFromFloat(1024.55)},
		},
		Added: []TransactionDelta{
			{ExternalTransactionID: "txn-1", ExternalAccountID: "acc-1", Date: "2024-03-15", Amount: decimal.NewFromFloat(-42.50), Name: "Coffee Shop"},
			{ExternalTransactionID: "txn-2", ExternalAccountID: "acc-1", Date: "2024-03-14", Amount: decimal.NewFromFloat(1500.00), Name: "Employer Inc", CategoryHint: "Income"},
			{ExternalTransactionID: "txn-3", ExternalAccountID: "acc-1", Date: "2024-03-13", Amount: decimal.NewFromFloat(-9.99), Name: "Old"},
			{ExternalTransactionID: "", Date: "2024-03-12", Amount: decimal.NewFromFloat(-1.00), Name: "No ID"},
		},
		NextCursor: "cursor-1",
	}}}

	engine := NewSyncEngine(db, fetcher, cipher)
	result, err := engine.Sync(1, 3)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 0, result.Modified)
	assert.Equal(t, 0, result.Removed)
	assert.True(t, result.FirstSync)

	// 解密后的令牌、空游标原样传给聚合器
	require.Equal(t, 1, fetcher.calls)
	assert.Equal(t, "access-token-1", fetcher.tokens[0])
	assert.Equal(t, "", fetcher.cursors[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_SecondRoundUsesStoredCursor(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	cipher := testCipher(t)
	enc, err := cipher.Encrypt("access-token-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(3), uint(1)).
		WillReturnRows(linkedItemRows().AddRow(3, 1, "item-ext-3", enc, "ins_1", "Demo Bank", "cursor-1"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `linked_items`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	fetcher := &fakeFetcher{pages: []*DeltaPage{{NextCursor: "cursor-2"}}}
	engine := NewSyncEngine(db, fetcher, cipher)

	result, err := engine.Sync(1, 3)
	require.NoError(t, err)
	assert.False(t, result.FirstSync)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, "cursor-1", fetcher.cursors[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_UpstreamFailureKeepsCursor(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	cipher := testCipher(t)
	enc, err := cipher.Encrypt("access-token-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(3), uint(1)).
		WillReturnRows(linkedItemRows().AddRow(3, 1, "item-ext-3", enc, "ins_1", "Demo Bank", "cursor-1"))

	fetcher := &fakeFetcher{errs: []error{errors.New("ITEM_LOGIN_REQUIRED")}}
	engine := NewSyncEngine(db, fetcher, cipher)

	_, err = engine.Sync(1, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))

	// 拉取失败后不会出现任何写操作，游标保持不动
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_ItemNotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 其他用户的连接对当前用户等同不存在
	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(99), uint(1)).
		WillReturnRows(linkedItemRows())

	engine := NewSyncEngine(db, &fakeFetcher{}, testCipher(t))
	_, err := engine.Sync(1, 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSyncAll_IsolatesFailures(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	cipher := testCipher(t)
	enc, err := cipher.Encrypt("access-token-1")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(1)).
		WillReturnRows(linkedItemRows().
			AddRow(3, 1, "item-ext-3", enc, "ins_1", "Bank A", "c0").
			AddRow(4, 1, "item-ext-4", enc, "ins_2", "Bank B", "c0"))

	// 连接 3：拉取失败
	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(3), uint(1)).
		WillReturnRows(linkedItemRows().AddRow(3, 1, "item-ext-3", enc, "ins_1", "Bank A", "c0"))

	// 连接 4：正常同步，新增一条
	mock.ExpectQuery("SELECT .* FROM `linked_items`").
		WithArgs(uint(4), uint(1)).
		WillReturnRows(linkedItemRows().AddRow(4, 1, "item-ext-4", enc, "ins_2", "Bank B", "c0"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `linked_items`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "txn-9").
		WillReturnRows(transactionRows())
	mock.ExpectQuery("SELECT .* FROM `rules`").
		WithArgs(uint(1), true).
		WillReturnRows(ruleRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnResult(sqlmock.NewResult(103, 1))
	mock.ExpectCommit()

	fetcher := &fakeFetcher{
		errs: []error{errors.New("ITEM_LOGIN_REQUIRED"), nil},
		pages: []*DeltaPage{nil, {
			Added: []TransactionDelta{
				{ExternalTransactionID: "txn-9", Date: "2024-03-16", Amount: decimal.NewFromFloat(-5.00), Name: "Bus"},
			},
			NextCursor: "c1",
		}},
	}

	engine := NewSyncEngine(db, fetcher, cipher)
	result, err := engine.SyncAll(1)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Items)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Total.Created)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "Bank A")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestAdded_BadDateSkipped(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "txn-bad").
		WillReturnRows(transactionRows())

	engine := NewSyncEngine(db, &fakeFetcher{}, testCipher(t))
	created, err := engine.ingestAdded(1, TransactionDelta{
		ExternalTransactionID: "txn-bad",
		Date:                  "15/03/2024",
		Amount:                decimal.NewFromFloat(-1.00),
		Name:                  "Bad Date",
	}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}
