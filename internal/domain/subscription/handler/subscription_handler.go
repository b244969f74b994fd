package handler

import (
	"net/http"
	"time"

	"meal_voucher/internal/domain/subscription/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/response"
	"meal_voucher/pkg/utils"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	service service.SubscriptionService
}

func NewSubscriptionHandler(s service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: s}
}

type PurchaseInput struct {
	PlanID     string `json:"planId" binding:"required"`
	PaymentID  string `json:"paymentId"`
	AmountPaid *int64 `json:"amountPaid" binding:"omitempty,min=0"`
}

type CancelInput struct {
	Reason string `json:"reason" binding:"required,max=255"`
}

// ListPlans 可购买的套餐
// @Summary 套餐列表
// @Tags Subscription
// @Produce json
// @Success 200 {object} response.Response
// @Router /subscriptions/plans [get]
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	plans, err := h.service.ListPlans(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, plans)
}

// Purchase 购买订阅并发放餐券
// @Summary 购买订阅
// @Tags Subscription
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body PurchaseInput true "Purchase Info"
// @Success 200 {object} response.Response{data=service.PurchaseResult}
// @Router /subscriptions [post]
func (h *SubscriptionHandler) Purchase(c *gin.Context) {
	var input PurchaseInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.Purchase(c.Request.Context(), service.PurchaseParams{
		UserID:     middleware.GetUserID(c),
		PlanID:     input.PlanID,
		PaymentID:  input.PaymentID,
		AmountPaid: input.AmountPaid,
	})
	if err != nil {
		if errutil.IsKind(err, errutil.KindValidationFailed) {
			response.Error(c, http.StatusBadRequest, response.ErrPlanUnavailable, err.Error())
			return
		}
		response.HandleError(c, err, response.ErrSubscriptionNotFound)
		return
	}

	response.Success(c, result)
}

// Get 订阅详情
// @Summary 订阅详情
// @Tags Subscription
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} response.Response
// @Router /subscriptions/{id} [get]
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err, response.ErrSubscriptionNotFound)
		return
	}
	if sub.UserID != middleware.GetUserID(c) && !middleware.IsAdmin(c) {
		response.Error(c, http.StatusNotFound, response.ErrSubscriptionNotFound, "subscription not found")
		return
	}
	response.Success(c, sub)
}

// List 当前用户的订阅
// @Summary 订阅列表
// @Tags Subscription
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /subscriptions [get]
func (h *SubscriptionHandler) List(c *gin.Context) {
	var page utils.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.ListByUser(c.Request.Context(), middleware.GetUserID(c), page)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, result)
}

// Cancel 取消订阅，本人或管理员可操作
// @Summary 取消订阅
// @Tags Subscription
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Subscription ID"
// @Param input body CancelInput true "Cancel Info"
// @Success 200 {object} response.Response{data=service.CancelResult}
// @Router /subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	var input CancelInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	id := c.Param("id")
	userID := middleware.GetUserID(c)
	if !middleware.IsAdmin(c) {
		sub, err := h.service.Get(c.Request.Context(), id)
		if err != nil {
			response.HandleError(c, err, response.ErrSubscriptionNotFound)
			return
		}
		if sub.UserID != userID {
			response.Error(c, http.StatusNotFound, response.ErrSubscriptionNotFound, "subscription not found")
			return
		}
	}

	result, err := h.service.Cancel(c.Request.Context(), id, input.Reason, userID)
	if err != nil {
		response.HandleError(c, err, response.ErrSubscriptionNotFound)
		return
	}
	response.Success(c, result)
}

// SweepExpired 手动触发订阅过期
// @Summary 订阅过期清理
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} response.Response
// @Router /admin/subscriptions/expire [post]
func (h *SubscriptionHandler) SweepExpired(c *gin.Context) {
	count, err := h.service.SweepExpired(c.Request.Context(), time.Now().UTC())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"expired": count})
}
