package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"finpilot/config"
	"finpilot/database"
	"finpilot/middleware"
	"finpilot/models"
	"finpilot/service"

	"github.com/gin-gonic/gin"
)

// SyncHandler 机构连接与同步处理器
type SyncHandler struct {
	fetcher      service.DeltaFetcher
	cipher       *service.TokenCipher
	emailService *service.EmailService
}

// NewSyncHandler 创建同步处理器
// 加密密钥配置错误属于启动期问题，直接返回错误让进程拒绝启动
func NewSyncHandler(cfg *config.Config) (*SyncHandler, error) {
	cipher, err := service.NewTokenCipher(cfg.Crypto.KeyBase64)
	if err != nil {
		return nil, err
	}
	return &SyncHandler{
		fetcher:      service.NewAggregatorClient(&cfg.Aggregator),
		cipher:       cipher,
		emailService: service.NewEmailService(&cfg.Email),
	}, nil
}

// engine 每次请求基于当前 database.DB 构造引擎
func (h *SyncHandler) engine() *service.SyncEngine {
	return service.NewSyncEngine(database.DB, h.fetcher, h.cipher)
}

// ListItems 获取连接列表
// @Summary 获取机构连接列表
// @Description 获取当前用户全部机构连接（访问令牌不会出现在响应中）
// @Tags 同步
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.LinkedItem} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/items [get]
func (h *SyncHandler) ListItems(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var items []models.LinkedItem
	if err := database.DB.Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, items)
}

// ListAccounts 获取账户列表
// @Summary 获取账户列表
// @Description 获取当前用户全部连接下同步到的金融账户
// @Tags 同步
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]models.Account} "获取成功"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/accounts [get]
func (h *SyncHandler) ListAccounts(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	var accounts []models.Account
	if err := database.DB.
		Joins("JOIN linked_items ON linked_items.id = accounts.linked_item_id").
		Where("linked_items.user_id = ?", userID).
		Order("accounts.id ASC").
		Find(&accounts).Error; err != nil {
		InternalError(c, SafeErrorMessage(err, "查询失败"))
		return
	}

	Success(c, accounts)
}

// SyncItem 同步单个连接
// @Summary 同步单个连接
// @Description 对指定机构连接执行一轮游标增量同步。拉取失败时游标不推进，下次重试同一窗口。
// @Tags 同步
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "连接ID"
// @Success 200 {object} Response{data=service.SyncResult} "同步完成"
// @Failure 401 {object} Response "未授权"
// @Failure 404 {object} Response "连接不存在"
// @Failure 502 {object} Response "聚合器调用失败"
// @Router /api/v1/items/{id}/sync [post]
func (h *SyncHandler) SyncItem(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		BadRequest(c, "无效的ID")
		return
	}

	result, err := h.engine().Sync(userID, uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			NotFound(c, "连接不存在")
		case errors.Is(err, service.ErrUpstream):
			Error(c, http.StatusBadGateway, SafeErrorMessage(err, "聚合器调用失败"))
		default:
			InternalError(c, SafeErrorMessage(err, "同步失败"))
		}
		return
	}

	SuccessWithMessage(c, "同步完成", result)
}

// SyncAll 同步全部连接
// @Summary 同步全部连接
// @Description 依次同步当前用户的全部机构连接。单个连接失败不影响其余连接；有失败且用户设置了邮箱时异步发送失败通知。
// @Tags 同步
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=service.SyncAllResult} "同步完成"
// @Failure 401 {object} Response "未授权"
// @Router /api/v1/sync [post]
func (h *SyncHandler) SyncAll(c *gin.Context) {
	userID := middleware.GetCurrentUserID(c)

	result, err := h.engine().SyncAll(userID)
	if err != nil {
		InternalError(c, SafeErrorMessage(err, "同步失败"))
		return
	}

	if result.Failed > 0 {
		h.notifyFailures(userID, result.Failures)
	}

	SuccessWithMessage(c, "同步完成", result)
}

// notifyFailures 异步发送同步失败通知，发送失败只记日志
func (h *SyncHandler) notifyFailures(userID uint, failures []string) {
	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil || user.Email == "" {
		return
	}
	go func() {
		if err := h.emailService.SendSyncFailureEmail(user.Email, user.Username, failures); err != nil {
			log.Printf("发送同步失败通知失败: %v", err)
		}
	}()
}
