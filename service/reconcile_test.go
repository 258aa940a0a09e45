package service

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAccount_CreatesWhenMissing(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `accounts`").
		WithArgs(uint(3), "acc-1").
		WillReturnRows(accountRows())
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `accounts`").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	account, err := UpsertAccount(db, 3, AccountSnapshot{
		ExternalAccountID: "acc-1",
		Name:              "Checking",
		Type:              "depository",
		Balance:           decimal.NewFromFloat(1024.55),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(11), account.ID)
	assert.Equal(t, "Checking", account.DisplayName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAccount_UpdatesExisting(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `accounts`").
		WithArgs(uint(3), "acc-1").
		WillReturnRows(accountRows().AddRow(11, 3, "acc-1", "Old Name", "depository", "100.00"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `accounts`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 余额和展示名最后写入生效
	account, err := UpsertAccount(db, 3, AccountSnapshot{
		ExternalAccountID: "acc-1",
		Name:              "Everyday Checking",
		Type:              "depository",
		Balance:           decimal.NewFromFloat(888.00),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(11), account.ID)
	assert.Equal(t, "Everyday Checking", account.DisplayName)
	assert.True(t, account.Balance.Equal(decimal.NewFromFloat(888.00)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAccount_QueryError(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `accounts`").
		WillReturnError(assert.AnError)

	_, err := UpsertAccount(db, 3, AccountSnapshot{ExternalAccountID: "acc-1"})
	assert.Error(t, err)
}
