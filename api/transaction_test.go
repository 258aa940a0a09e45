package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setUserIDMiddleware(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	}
}

func txRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "date", "amount", "merchant", "category_id", "category_locked"})
}

func TestTransactionHandler_Create(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 查重无冲突
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-15", decimal.RequireFromString("-42.50")).
		WillReturnRows(txRows())

	// 未指定类别，走规则引擎（无规则命中）
	mock.ExpectQuery("SELECT .* FROM `rules`").
		WithArgs(uint(1), true).
		WillReturnRows(sqlmock.NewRows([]string{}))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/transactions", NewTransactionHandler().Create)

	body := `{"date":"2024-03-15","amount":-42.50,"merchant":"Coffee Shop"}`
	req := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "创建成功", resp["message"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHandler_Create_Conflict(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 同日同金额且商户名归一化后相同 → 409
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-15", decimal.RequireFromString("-42.50")).
		WillReturnRows(txRows().AddRow(7, 1, date, "-42.50", "  COFFEE Shop ", nil, false))

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/transactions", NewTransactionHandler().Create)

	body := `{"date":"2024-03-15","amount":-42.50,"merchant":"coffee shop"}`
	req := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 409, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	existing := data["existing"].(map[string]interface{})
	assert.Equal(t, float64(7), existing["id"])
	candidate := data["candidate"].(map[string]interface{})
	assert.Equal(t, "coffee shop", candidate["merchant"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHandler_Create_ForceSkipsDedup(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	// force=true 不触发查重，直接走规则引擎后入库
	mock.ExpectQuery("SELECT .* FROM `rules`").
		WithArgs(uint(1), true).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/transactions", NewTransactionHandler().Create)

	body := `{"date":"2024-03-15","amount":-42.50,"merchant":"coffee shop"}`
	req := httptest.NewRequest("POST", "/transactions?force=true", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHandler_Create_ManualCategoryLocks(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 校验类别归属
	mock.ExpectQuery("SELECT .* FROM `categories`").
		WithArgs(uint(3), uint(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "type", "color"}).
			AddRow(3, 1, "Food & drink", "EXPENSE", "#E53935"))

	// 查重
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(1), "2024-03-15", decimal.RequireFromString("-42.50")).
		WillReturnRows(txRows())

	// 手工指定类别不再走规则引擎，直接入库
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/transactions", NewTransactionHandler().Create)

	body := `{"date":"2024-03-15","amount":-42.50,"merchant":"Coffee Shop","category_id":3}`
	req := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["category_id"])
	assert.Equal(t, true, data["category_locked"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHandler_Create_InvalidCategory(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT .* FROM `categories`").
		WithArgs(uint(99), uint(1)).
		WillReturnRows(sqlmock.NewRows([]string{}))

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.POST("/transactions", NewTransactionHandler().Create)

	body := `{"date":"2024-03-15","amount":-42.50,"merchant":"Coffee Shop","category_id":99}`
	req := httptest.NewRequest("POST", "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 400, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHandler_Update_ClearCategoryUnlocks(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)

	// 加载目标交易
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(5, uint(1)).
		WillReturnRows(txRows().AddRow(5, 1, date, "-42.50", "Coffee Shop", 3, true))

	// 三要素未变不触发查重，直接更新：清类别并解锁
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `transactions`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 更新后重新加载
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(uint(5)).
		WillReturnRows(txRows().AddRow(5, 1, date, "-42.50", "Coffee Shop", nil, false))

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.PUT("/transactions/:id", NewTransactionHandler().Update)

	body := `{"category_id":0}`
	req := httptest.NewRequest("PUT", "/transactions/5", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Nil(t, data["category_id"])
	assert.Equal(t, false, data["category_locked"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionHandler_Get_NotFound(t *testing.T) {
	mock, cleanup := setupMockDB(t)
	defer cleanup()

	// 他人的交易对当前用户不可见
	mock.ExpectQuery("SELECT .* FROM `transactions`").
		WithArgs(99, uint(1)).
		WillReturnRows(txRows())

	router := gin.New()
	router.Use(setUserIDMiddleware(1))
	router.GET("/transactions/:id", NewTransactionHandler().Get)

	req := httptest.NewRequest("GET", "/transactions/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, 404, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
