package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"finpilot/database"
	"finpilot/middleware"
	"finpilot/models"
	"finpilot/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TransactionHandler 交易记录处理器
type TransactionHandler struct{}

// NewTransactionHandler 创建交易记录处理器
func NewTransactionHandler() *TransactionHandler {
	return &TransactionHandler{}
}

// CreateTransactionRequest 创建交易请求
// Amount 符号约定：正数为收入，负数为支出
type CreateTransactionRequest struct {
	Date       string          `json:"date" binding:"required" example:"2024-03-15"`
	Amount     decimal.Decimal `json:"amount" binding:"required" example:"-42.50"`
	Merchant   string          `json:"merchant" binding:"required" example:"Coffee Shop"`
	CategoryID *uint           `json:"category_id" example:"3"`
	AccountID  *uint           `json:"account_id" example:"1"`
}

// UpdateTransactionRequest 更新交易请求（指针字段区分“未传”和“清空”）
type UpdateTransactionRequest struct {
	Date       *string          `json:"date" example:"2024-03-15"`
	Amount     *decimal.Decimal `json:"amount" example:"-42.50"`
	Merchant   *string          `json:"merchant" example:"Coffee Shop"`
	CategoryID *uint            `json:"category_id" example:"3"` // 传 0 表示清除类别并解锁
}

// TransactionListRequest 交易列表请求
type TransactionListRequest struct {
	Page       int    `form:"page" example:"1"`
	PageSize   int    `form:"page_size" example:"10"`
	CategoryID uint   `form:"category_id"`
	AccountID  uint   `form:"account_id"`
	Merchant   string `form:"merchant" example:"coffee"`
	StartDate  string `form:"start_date" example:"2024-01-01"`
	EndDate    string `form:"end_date" example:"2024-12-31"`
}

// conflictResponse 返回 409 及冲突双方，客户端可据此决定是否强制提交
func conflictResponse(c *gin.Context, dup *service.DuplicateError) {
	c.JSON(http.StatusConflict, Response{
		Code:    http.StatusConflict,
		Message: "存在疑似重复交易，如确认本次录入请携带 force=true 重试",
		Data:    dup,
	})
}

// validateOwnedCategory 校验类别存在且属于当前用户
func validateOwnedCategory(c *gin.Context, userID, categoryID uint) bool {
	var cat models.Category
	if err := database.DB.Where("id = ? AND user_id = ?", categoryID, userID).First(&cat).Error; err != nil {
		BadRequest(c, "无效的类别")
		return false
	}
	return true
}

// Create 手工录入交易
// @Summary 手工录入交易
// @Description 手工录入一条交易。同一天、金额相同、商户名归一化后相同的已有记录会触发 409 重复冲突；携带 force=true 可强制录入。手工指定类别会锁定该类别，不指定时走自动分类规则。
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param force query bool false "疑似重复时强制录入" default(false)
// @Param request body CreateTransactionRequest true "交易信息"
// @Success 200 {object} Response{data=models.Transaction} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Failure 409 {object} Response "存在疑似重复交易"
// @Router /api/v1/transactions [post]
func (h *TransactionHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	req.Merchant = strings.TrimSpace(req.Merchant)
	if req.Merchant == "" {
		BadRequest(c, "商户名不能为空")
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
	if err != nil {
		BadRequest(c, "日期格式错误，应为: 2006-01-02")
		return
	}

	if req.CategoryID != nil && !validateOwnedCategory(c, userID, *req.CategoryID) {
		return
	}

	// 模糊查重，force=true 时跳过
	force := c.Query("force") == "true"
	if !force {
		existing, err := service.FindConflict(database.DB, userID, date, req.Amount, req.Merchant, nil)
		if err != nil {
			InternalError(c, SafeErrorMessage(err, "查重失败"))
			return
		}
		if existing != nil {
			conflictResponse(c, &service.DuplicateError{
				Existing: existing,
				Candidate: service.DuplicateCandidate{
					Date:     date,
					Amount:   req.Amount,
					Merchant: req.Merchant,
				},
			})
			return
		}
	}

	tx := models.Transaction{
		UserID:    userID,
		Date:      date,
		Amount:    req.Amount,
		Merchant:  req.Merchant,
		AccountID: req.AccountID,
	}

	if req.CategoryID != nil {
		// 手工指定类别视为用户决定，锁定防止自动分类覆盖
		tx.CategoryID = req.CategoryID
		tx.CategoryLocked = true
	} else if err := service.ApplyIfUnlocked(database.DB, &tx); err != nil {
		InternalError(c, SafeErrorMessage(err, "自动分类失败"))
		return
	}

	if err := database.DB.Create(&tx).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "创建交易失败"))
		return
	}

	SuccessWithMessage(c, "创建成功", tx)
}

// List 获取交易列表
// @Summary 获取交易列表
// @Description 获取当前用户的交易列表，支持分页、类别/账户/商户名/日期范围筛选
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Param category_id query int false "类别筛选"
// @Param account_id query int false "账户筛选"
// @Param merchant query string false "商户名模糊筛选"
// @Param start_date query string false "开始日期 (2024-01-01)"
// @Param end_date query string false "结束日期 (2024-12-31)"
// @Success 200 {object} Response{data=PageResponse{list=[]models.Transaction}} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/transactions [get]
func (h *TransactionHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req TransactionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	// 默认分页参数
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 10
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	query := database.DB.Model(&models.Transaction{}).Where("user_id = ?", userID)

	if req.CategoryID > 0 {
		query = query.Where("category_id = ?", req.CategoryID)
	}
	if req.AccountID > 0 {
		query = query.Where("account_id = ?", req.AccountID)
	}
	if req.Merchant != "" {
		query = query.Where("merchant LIKE ?", "%"+strings.TrimSpace(req.Merchant)+"%")
	}

	// 日期范围筛选
	if req.StartDate != "" {
		if start, err := time.ParseInLocation("2006-01-02", req.StartDate, time.Local); err == nil {
			query = query.Where("date >= ?", start.Format("2006-01-02"))
		}
	}
	if req.EndDate != "" {
		if end, err := time.ParseInLocation("2006-01-02", req.EndDate, time.Local); err == nil {
			query = query.Where("date <= ?", end.Format("2006-01-02"))
		}
	}

	var total int64
	query.Count(&total)

	var transactions []models.Transaction
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("date DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&transactions).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, PageResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		List:     transactions,
	})
}

// Get 获取单条交易
// @Summary 获取单条交易
// @Description 根据ID获取交易详情
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "交易ID"
// @Success 200 {object} Response{data=models.Transaction} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var tx models.Transaction
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&tx).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	Success(c, tx)
}

// Update 更新交易
// @Summary 更新交易
// @Description 更新指定的交易。修改日期/金额/商户名时会重新查重（排除自身）；手工改类别会锁定，category_id 传 0 清除类别并解锁。
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "交易ID"
// @Param force query bool false "疑似重复时强制保存" default(false)
// @Param request body UpdateTransactionRequest true "交易信息"
// @Success 200 {object} Response{data=models.Transaction} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Failure 409 {object} Response "存在疑似重复交易"
// @Router /api/v1/transactions/{id} [put]
func (h *TransactionHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var tx models.Transaction
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&tx).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	var req UpdateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	// 合并后的三要素用于查重
	newDate := tx.Date
	newAmount := tx.Amount
	newMerchant := tx.Merchant
	identityChanged := false

	if req.Date != nil {
		d, err := time.ParseInLocation("2006-01-02", *req.Date, time.Local)
		if err != nil {
			BadRequest(c, "日期格式错误，应为: 2006-01-02")
			return
		}
		newDate = d
		identityChanged = true
	}
	if req.Amount != nil {
		newAmount = *req.Amount
		identityChanged = true
	}
	if req.Merchant != nil {
		m := strings.TrimSpace(*req.Merchant)
		if m == "" {
			BadRequest(c, "商户名不能为空")
			return
		}
		newMerchant = m
		identityChanged = true
	}

	// 三要素变化时重新查重，排除自身
	force := c.Query("force") == "true"
	if identityChanged && !force {
		selfID := tx.ID
		existing, err := service.FindConflict(database.DB, userID, newDate, newAmount, newMerchant, &selfID)
		if err != nil {
			InternalError(c, SafeErrorMessage(err, "查重失败"))
			return
		}
		if existing != nil {
			conflictResponse(c, &service.DuplicateError{
				Existing: existing,
				Candidate: service.DuplicateCandidate{
					Date:     newDate,
					Amount:   newAmount,
					Merchant: newMerchant,
				},
			})
			return
		}
	}

	updates := make(map[string]interface{})
	if req.Date != nil {
		updates["date"] = newDate
	}
	if req.Amount != nil {
		updates["amount"] = newAmount
	}
	if req.Merchant != nil {
		updates["merchant"] = newMerchant
	}
	if req.CategoryID != nil {
		if *req.CategoryID == 0 {
			// 清除类别并解锁，之后的自动分类可重新接管
			updates["category_id"] = nil
			updates["category_locked"] = false
		} else {
			if !validateOwnedCategory(c, userID, *req.CategoryID) {
				return
			}
			// 手工指定类别视为用户决定，锁定
			updates["category_id"] = *req.CategoryID
			updates["category_locked"] = true
		}
	}

	if len(updates) == 0 {
		Success(c, tx)
		return
	}

	if err := database.DB.Model(&tx).Updates(updates).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "更新失败"))
		return
	}

	// 重新获取更新后的记录，用新变量避免旧主键条件叠加
	var updated models.Transaction
	if err := database.DB.First(&updated, tx.ID).Error; err == nil {
		tx = updated
	}
	SuccessWithMessage(c, "更新成功", tx)
}

// Delete 删除交易
// @Summary 删除交易
// @Description 删除指定的交易
// @Tags 交易
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "交易ID"
// @Success 200 {object} Response "删除成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "记录不存在"
// @Router /api/v1/transactions/{id} [delete]
func (h *TransactionHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var tx models.Transaction
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&tx).Error; err != nil {
		NotFound(c, "记录不存在")
		return
	}

	if err := database.DB.Delete(&tx).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除失败"))
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}
