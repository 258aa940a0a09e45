package api

import (
	"regexp"
	"strconv"
	"strings"

	"finpilot/database"
	"finpilot/middleware"
	"finpilot/models"
	"finpilot/service"

	"github.com/gin-gonic/gin"
)

// RuleHandler 自动分类规则处理器
type RuleHandler struct{}

// NewRuleHandler 创建规则处理器
func NewRuleHandler() *RuleHandler {
	return &RuleHandler{}
}

// CreateRuleRequest 创建规则请求
type CreateRuleRequest struct {
	Pattern    string `json:"pattern" binding:"required,max=255" example:"harris teeter"`
	MatchType  string `json:"match_type" binding:"required,oneof=CONTAINS REGEX" example:"CONTAINS"`
	CategoryID uint   `json:"category_id" binding:"required" example:"3"`
	Priority   *int   `json:"priority" example:"100"` // 越小越先匹配，缺省 100
	Enabled    *bool  `json:"enabled" example:"true"` // 缺省启用
}

// UpdateRuleRequest 更新规则请求
type UpdateRuleRequest struct {
	Pattern    string `json:"pattern" binding:"omitempty,max=255" example:"harris teeter"`
	MatchType  string `json:"match_type" binding:"omitempty,oneof=CONTAINS REGEX" example:"CONTAINS"`
	CategoryID uint   `json:"category_id" example:"3"`
	Priority   *int   `json:"priority" example:"100"`
}

// SetRuleEnabledRequest 启停规则请求
type SetRuleEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required" example:"false"`
}

// TestRuleRequest 规则试运行请求
type TestRuleRequest struct {
	Merchant string `json:"merchant" binding:"required" example:"HARRIS TEETER #123"`
}

// validateRegexPattern REGEX 规则创建/修改时校验正则可编译
// 运行时匹配对非法正则仍按不命中兜底（历史数据可能存在非法规则）
func validateRegexPattern(c *gin.Context, matchType, pattern string) bool {
	if matchType != models.MatchTypeRegex {
		return true
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		BadRequest(c, "正则表达式无效: "+err.Error())
		return false
	}
	return true
}

// List 获取规则列表
// @Summary 获取规则列表
// @Description 获取当前用户的自动分类规则，按 priority 升序、同优先级按ID升序（即匹配顺序）
// @Tags 规则
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Rule} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/rules [get]
func (h *RuleHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var list []models.Rule
	if err := database.DB.Where("user_id = ?", userID).Order("priority ASC, id ASC").Find(&list).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, list)
}

// Create 创建规则
// @Summary 创建规则
// @Description 创建一条自动分类规则。CONTAINS 为归一化后的子串匹配，REGEX 为大小写不敏感的部分匹配。
// @Tags 规则
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRuleRequest true "规则信息"
// @Success 200 {object} Response{data=models.Rule} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/rules [post]
func (h *RuleHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	req.Pattern = strings.TrimSpace(req.Pattern)
	if req.Pattern == "" {
		BadRequest(c, "匹配模式不能为空")
		return
	}
	if !validateRegexPattern(c, req.MatchType, req.Pattern) {
		return
	}
	if !validateOwnedCategory(c, userID, req.CategoryID) {
		return
	}

	rule := models.Rule{
		UserID:     userID,
		Pattern:    req.Pattern,
		MatchType:  req.MatchType,
		CategoryID: req.CategoryID,
		Priority:   100,
		Enabled:    true,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := database.DB.Create(&rule).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "创建规则失败"))
		return
	}

	SuccessWithMessage(c, "创建成功", rule)
}

// Update 更新规则
// @Summary 更新规则
// @Description 更新指定的规则
// @Tags 规则
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "规则ID"
// @Param request body UpdateRuleRequest true "规则信息"
// @Success 200 {object} Response{data=models.Rule} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "规则不存在"
// @Router /api/v1/rules/{id} [put]
func (h *RuleHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var rule models.Rule
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&rule).Error; err != nil {
		NotFound(c, "规则不存在")
		return
	}

	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	updates := make(map[string]interface{})
	matchType := rule.MatchType
	if req.MatchType != "" {
		matchType = req.MatchType
		updates["match_type"] = req.MatchType
	}
	if req.Pattern != "" {
		pattern := strings.TrimSpace(req.Pattern)
		if pattern == "" {
			BadRequest(c, "匹配模式不能为空")
			return
		}
		if !validateRegexPattern(c, matchType, pattern) {
			return
		}
		updates["pattern"] = pattern
	} else if req.MatchType == models.MatchTypeRegex {
		// 只改类型不改模式时，同样要保证存量模式可编译
		if !validateRegexPattern(c, matchType, rule.Pattern) {
			return
		}
	}
	if req.CategoryID > 0 {
		if !validateOwnedCategory(c, userID, req.CategoryID) {
			return
		}
		updates["category_id"] = req.CategoryID
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&rule).Updates(updates).Error; err != nil {
			InternalError(c, SafeErrorMessage(err, "更新失败"))
			return
		}
		var updated models.Rule
		if err := database.DB.First(&updated, rule.ID).Error; err == nil {
			rule = updated
		}
	}

	SuccessWithMessage(c, "更新成功", rule)
}

// SetEnabled 启用/停用规则
// @Summary 启用/停用规则
// @Description 启用或停用指定规则，停用的规则不参与匹配但保留配置
// @Tags 规则
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "规则ID"
// @Param request body SetRuleEnabledRequest true "启停状态"
// @Success 200 {object} Response{data=models.Rule} "设置成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "规则不存在"
// @Router /api/v1/rules/{id}/enabled [put]
func (h *RuleHandler) SetEnabled(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var rule models.Rule
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&rule).Error; err != nil {
		NotFound(c, "规则不存在")
		return
	}

	var req SetRuleEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	if err := database.DB.Model(&rule).Update("enabled", *req.Enabled).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "更新失败"))
		return
	}

	rule.Enabled = *req.Enabled
	SuccessWithMessage(c, "设置成功", rule)
}

// Delete 删除规则
// @Summary 删除规则
// @Description 删除指定的规则，已由该规则分类的交易不受影响
// @Tags 规则
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "规则ID"
// @Success 200 {object} Response "删除成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "规则不存在"
// @Router /api/v1/rules/{id} [delete]
func (h *RuleHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var rule models.Rule
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&rule).Error; err != nil {
		NotFound(c, "规则不存在")
		return
	}

	if err := database.DB.Delete(&rule).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除失败"))
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}

// Test 规则试运行
// @Summary 规则试运行
// @Description 对给定商户名做一次完整的规则匹配（与入库时同一套逻辑），返回命中的类别，不写任何数据
// @Tags 规则
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TestRuleRequest true "商户名"
// @Success 200 {object} Response "matched 表示是否命中，命中时带 category"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/rules/test [post]
func (h *RuleHandler) Test(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req TestRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	cat, matched, err := service.AssignCategory(database.DB, userID, req.Merchant)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "规则匹配失败"))
		return
	}

	if !matched {
		Success(c, gin.H{
			"matched":             false,
			"merchant_normalized": service.NormalizeMerchant(req.Merchant),
		})
		return
	}

	Success(c, gin.H{
		"matched":             true,
		"merchant_normalized": service.NormalizeMerchant(req.Merchant),
		"category":            cat,
	})
}
