package service

import (
	"testing"
	"time"

	"finpilot/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transactionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "date", "amount", "merchant", "category_locked"})
}

func TestFindConflict_MerchantNormalized(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	amount := decimal.NewFromFloat(-42.50)

	// 库里存的是带大小写和空白的原始商户名
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-15", amount).
		WillReturnRows(transactionRows().AddRow(7, 1, date, "-42.50", "  COFFEE Shop ", false))

	conflict, err := FindConflict(db, 1, date, amount, "coffee shop", nil)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	assert.Equal(t, uint(7), conflict.ID)
}

func TestFindConflict_DifferentMerchant(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	amount := decimal.NewFromFloat(-42.50)

	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-15", amount).
		WillReturnRows(transactionRows().AddRow(7, 1, date, "-42.50", "Walmart", false))

	conflict, err := FindConflict(db, 1, date, amount, "coffee shop", nil)
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestFindConflict_NoCandidates(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	date := time.Date(2024, 3, 16, 0, 0, 0, 0, time.Local)
	amount := decimal.NewFromFloat(-42.50)

	// 日期或金额只要有一个不同就查不到候选，谈不上冲突
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-16", amount).
		WillReturnRows(transactionRows())

	conflict, err := FindConflict(db, 1, date, amount, "coffee shop", nil)
	require.NoError(t, err)
	assert.Nil(t, conflict)
}

func TestFindConflict_ExcludeSelf(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	amount := decimal.NewFromFloat(-42.50)
	selfID := uint(7)

	// 编辑场景下自身不能算作自己的重复
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-15", amount, selfID).
		WillReturnRows(transactionRows())

	conflict, err := FindConflict(db, 1, date, amount, "coffee shop", &selfID)
	require.NoError(t, err)
	assert.Nil(t, conflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindConflict_DBError(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WillReturnError(assert.AnError)

	_, err := FindConflict(db, 1, time.Now(), decimal.NewFromInt(-1), "x", nil)
	assert.Error(t, err)
}

func TestDuplicateError_Message(t *testing.T) {
	existing := &models.Transaction{ID: 7, Merchant: "Coffee Shop"}
	dup := &DuplicateError{
		Existing: existing,
		Candidate: DuplicateCandidate{
			Date:     time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local),
			Amount:   decimal.NewFromFloat(-42.50),
			Merchant: "coffee shop",
		},
	}
	assert.Contains(t, dup.Error(), "7")
}
