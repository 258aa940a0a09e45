package api

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"finpilot/database"
	"finpilot/middleware"
	"finpilot/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CategoryHandler 类别处理器
type CategoryHandler struct{}

// NewCategoryHandler 创建类别处理器
func NewCategoryHandler() *CategoryHandler {
	return &CategoryHandler{}
}

// CreateCategoryRequest 创建类别请求
type CreateCategoryRequest struct {
	Name  string `json:"name" binding:"required,max=50" example:"Food & drink"`
	Type  string `json:"type" binding:"required,oneof=EXPENSE INCOME" example:"EXPENSE"`
	Color string `json:"color" example:"#E53935"`
}

// UpdateCategoryRequest 更新类别请求
type UpdateCategoryRequest struct {
	Name  string `json:"name" binding:"omitempty,max=50" example:"Food & drink"`
	Type  string `json:"type" binding:"omitempty,oneof=EXPENSE INCOME" example:"EXPENSE"`
	Color string `json:"color" example:"#E53935"`
}

// seedDefaultsIfEmpty 用户首次访问类别时播种默认类别
// 播种只做尽力而为，失败由下次访问重试，不应影响本次读取
func seedDefaultsIfEmpty(userID uint) error {
	var count int64
	if err := database.DB.Model(&models.Category{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	defaults := models.GetDefaultCategories()
	categories := make([]models.Category, 0, len(defaults))
	for _, d := range defaults {
		categories = append(categories, models.Category{
			UserID: userID,
			Name:   d.Name,
			Type:   d.Type,
			Color:  d.Color,
		})
	}
	return database.DB.Create(&categories).Error
}

// List 获取类别列表
// @Summary 获取类别列表
// @Description 获取当前用户的类别列表。首次访问时自动创建一套默认类别（与聚合器一级分类对齐）。
// @Tags 类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Category} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	if err := seedDefaultsIfEmpty(userID); err != nil {
		log.Printf("播种默认类别失败 user_id=%d: %v", userID, err)
	}

	var list []models.Category
	if err := database.DB.Where("user_id = ?", userID).Order("name ASC, id ASC").Find(&list).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, list)
}

// Create 创建类别
// @Summary 创建类别
// @Description 创建一个新类别，同一用户内类别名不可重复
// @Tags 类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCategoryRequest true "类别信息"
// @Success 200 {object} Response{data=models.Category} "创建成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/categories [post]
func (h *CategoryHandler) Create(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		BadRequest(c, "类别名不能为空")
		return
	}

	// 同一用户内类别名唯一
	var existing models.Category
	err := database.DB.Where("user_id = ? AND name = ?", userID, req.Name).First(&existing).Error
	if err == nil {
		BadRequest(c, "类别名已存在")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		InternalError(c, SafeErrorMessage(err, "查询类别失败"))
		return
	}

	category := models.Category{
		UserID: userID,
		Name:   req.Name,
		Type:   req.Type,
		Color:  req.Color,
	}

	if err := database.DB.Create(&category).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "创建类别失败"))
		return
	}

	SuccessWithMessage(c, "创建成功", category)
}

// Update 更新类别
// @Summary 更新类别
// @Description 更新指定的类别
// @Tags 类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Param request body UpdateCategoryRequest true "类别信息"
// @Success 200 {object} Response{data=models.Category} "更新成功"
// @Failure 400 {object} Response "请求参数错误"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "类别不存在"
// @Router /api/v1/categories/{id} [put]
func (h *CategoryHandler) Update(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var category models.Category
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&category).Error; err != nil {
		NotFound(c, "类别不存在")
		return
	}

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, SafeErrorMessage(err, "参数错误"))
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		name := strings.TrimSpace(req.Name)
		if name == "" {
			BadRequest(c, "类别名不能为空")
			return
		}
		var existing models.Category
		err := database.DB.Where("user_id = ? AND name = ? AND id != ?", userID, name, category.ID).First(&existing).Error
		if err == nil {
			BadRequest(c, "类别名已存在")
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			InternalError(c, SafeErrorMessage(err, "查询类别失败"))
			return
		}
		updates["name"] = name
	}
	if req.Type != "" {
		updates["type"] = req.Type
	}
	if req.Color != "" {
		updates["color"] = req.Color
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&category).Updates(updates).Error; err != nil {
			InternalError(c, SafeErrorMessage(err, "更新失败"))
			return
		}
		var updated models.Category
		if err := database.DB.First(&updated, category.ID).Error; err == nil {
			category = updated
		}
	}

	SuccessWithMessage(c, "更新成功", category)
}

// Delete 删除类别
// @Summary 删除类别
// @Description 删除指定的类别。引用该类别的交易会变为未分类；指向该类别的规则在匹配时被自动跳过。
// @Tags 类别
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "类别ID"
// @Success 200 {object} Response "删除成功"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "类别不存在"
// @Router /api/v1/categories/{id} [delete]
func (h *CategoryHandler) Delete(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	var category models.Category
	if err := database.DB.Where("id = ? AND user_id = ?", id, userID).First(&category).Error; err != nil {
		NotFound(c, "类别不存在")
		return
	}

	// 先清掉引用，避免交易挂在已删除的类别上
	if err := database.DB.Model(&models.Transaction{}).
		Where("user_id = ? AND category_id = ?", userID, category.ID).
		Updates(map[string]interface{}{"category_id": nil, "category_locked": false}).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "清理交易类别失败"))
		return
	}

	if err := database.DB.Delete(&category).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "删除失败"))
		return
	}

	SuccessWithMessage(c, "删除成功", nil)
}
