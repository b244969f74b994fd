package handler

import (
	"net/http"
	"time"

	"meal_voucher/internal/domain/refund/model"
	"meal_voucher/internal/domain/refund/repository"
	"meal_voucher/internal/domain/refund/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/response"
	"meal_voucher/pkg/utils"

	"github.com/gin-gonic/gin"
)

var timeNow = func() time.Time { return time.Now().UTC() }

type RefundHandler struct {
	service service.RefundService
}

func NewRefundHandler(s service.RefundService) *RefundHandler {
	return &RefundHandler{service: s}
}

type InitiateInput struct {
	OrderID         string `json:"orderId" binding:"required"`
	Reason          string `json:"reason" binding:"required,oneof=ORDER_CANCELLED ORDER_REJECTED ADMIN_ACTION OTHER"`
	ReasonDetails   string `json:"reasonDetails" binding:"max=500"`
	RefundType      string `json:"refundType" binding:"omitempty,oneof=FULL PARTIAL"`
	Amount          int64  `json:"amount" binding:"min=0"`
	RequireApproval bool   `json:"requireApproval"`
}

type CancelInput struct {
	Reason string `json:"reason" binding:"max=255"`
}

type ListInput struct {
	utils.Pagination
	Status  string `form:"status" binding:"omitempty,oneof=INITIATED PENDING PROCESSING COMPLETED FAILED CANCELLED"`
	OrderID string `form:"orderId"`
	UserID  string `form:"userId"`
}

// ProcessResult 处理结果，网关失败时 Success 为 false 但请求本身成功
type ProcessResult struct {
	Refund  *model.Refund `json:"refund"`
	Success bool          `json:"success"`
}

// Initiate 发起退款
// @Summary 发起退款
// @Description 纯餐券订单只退回餐券，不生成退款单
// @Tags Refund
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body InitiateInput true "Refund Info"
// @Success 200 {object} response.Response{data=service.InitiateResult}
// @Failure 409 {object} response.Response "Refund in progress"
// @Router /refunds [post]
func (h *RefundHandler) Initiate(c *gin.Context) {
	var input InitiateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.Initiate(c.Request.Context(), service.InitiateParams{
		OrderID:         input.OrderID,
		Reason:          input.Reason,
		ReasonDetails:   input.ReasonDetails,
		RefundType:      input.RefundType,
		Amount:          input.Amount,
		InitiatedBy:     middleware.GetUserID(c),
		RequireApproval: input.RequireApproval,
	})
	if err != nil {
		code := response.ErrOrderNotFound
		if errutil.IsKind(err, errutil.KindConflict) {
			code = response.ErrRefundConflict
		}
		response.HandleError(c, err, code)
		return
	}

	response.Success(c, result)
}

// Get 查询退款单
// @Summary 查询退款单
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Refund ID"
// @Success 200 {object} response.Response{data=model.Refund}
// @Router /refunds/{id} [get]
func (h *RefundHandler) Get(c *gin.Context) {
	refund, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err, errorCode(err))
		return
	}
	if !h.canView(c, refund) {
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, "no permission to view this refund")
		return
	}
	response.Success(c, refund)
}

// GetByNo 按退款单号查询
// @Summary 按退款单号查询
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param refundNo path string true "Refund No"
// @Success 200 {object} response.Response{data=model.Refund}
// @Router /refunds/no/{refundNo} [get]
func (h *RefundHandler) GetByNo(c *gin.Context) {
	refund, err := h.service.GetByNo(c.Request.Context(), c.Param("refundNo"))
	if err != nil {
		response.HandleError(c, err, errorCode(err))
		return
	}
	if !h.canView(c, refund) {
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, "no permission to view this refund")
		return
	}
	response.Success(c, refund)
}

// ListByOrder 订单的全部退款记录
// @Summary 订单退款记录
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param orderId path string true "Order ID"
// @Success 200 {object} response.Response{data=[]model.Refund}
// @Router /refunds/order/{orderId} [get]
func (h *RefundHandler) ListByOrder(c *gin.Context) {
	refunds, err := h.service.ListByOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	if !middleware.IsAdmin(c) {
		userID := middleware.GetUserID(c)
		owned := make([]model.Refund, 0, len(refunds))
		for _, r := range refunds {
			if r.UserID == userID {
				owned = append(owned, r)
			}
		}
		refunds = owned
	}
	response.Success(c, refunds)
}

// errorCode 退款单不存在与并发冲突使用各自的业务码
func errorCode(err error) int {
	if errutil.IsKind(err, errutil.KindConflict) {
		return response.ErrRefundConflict
	}
	return response.ErrRefundNotFound
}

func (h *RefundHandler) canView(c *gin.Context, r *model.Refund) bool {
	return middleware.IsAdmin(c) || r.UserID == middleware.GetUserID(c)
}

// List 管理端退款列表
// @Summary 退款列表
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Param status query string false "Status"
// @Param orderId query string false "Order ID"
// @Param userId query string false "User ID"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /admin/refunds [get]
func (h *RefundHandler) List(c *gin.Context) {
	var input ListInput
	if err := c.ShouldBindQuery(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.List(c.Request.Context(), repository.Filter{
		Status:  input.Status,
		OrderID: input.OrderID,
		UserID:  input.UserID,
	}, input.Pagination)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, result)
}

// Process 提交网关
// @Summary 处理退款
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Refund ID"
// @Success 200 {object} response.Response{data=ProcessResult}
// @Router /admin/refunds/{id}/process [post]
func (h *RefundHandler) Process(c *gin.Context) {
	refund, ok, err := h.service.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err, errorCode(err))
		return
	}
	response.Success(c, ProcessResult{Refund: refund, Success: ok})
}

// Approve 审批并处理
// @Summary 审批退款
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Refund ID"
// @Success 200 {object} response.Response{data=ProcessResult}
// @Router /admin/refunds/{id}/approve [post]
func (h *RefundHandler) Approve(c *gin.Context) {
	refund, ok, err := h.service.Approve(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		response.HandleError(c, err, errorCode(err))
		return
	}
	response.Success(c, ProcessResult{Refund: refund, Success: ok})
}

// Retry 人工重试失败的退款
// @Summary 重试退款
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Refund ID"
// @Success 200 {object} response.Response{data=ProcessResult}
// @Router /admin/refunds/{id}/retry [post]
func (h *RefundHandler) Retry(c *gin.Context) {
	refund, ok, err := h.service.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err, errorCode(err))
		return
	}
	response.Success(c, ProcessResult{Refund: refund, Success: ok})
}

// Cancel 取消退款
// @Summary 取消退款
// @Tags Refund
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Refund ID"
// @Param input body CancelInput false "Cancel Info"
// @Success 200 {object} response.Response{data=model.Refund}
// @Router /admin/refunds/{id}/cancel [post]
func (h *RefundHandler) Cancel(c *gin.Context) {
	var input CancelInput
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
			return
		}
	}

	refund, err := h.service.Cancel(c.Request.Context(), c.Param("id"), input.Reason)
	if err != nil {
		response.HandleError(c, err, errorCode(err))
		return
	}
	response.Success(c, refund)
}

// SweepFailed 立即执行一次失败重试
// @Summary 失败退款重试
// @Tags Refund
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} response.Response{data=service.SweepResult}
// @Router /admin/refunds/sweep [post]
func (h *RefundHandler) SweepFailed(c *gin.Context) {
	result, err := h.service.SweepFailed(c.Request.Context(), timeNow())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, result)
}
