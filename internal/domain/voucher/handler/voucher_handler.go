package handler

import (
	"net/http"

	"meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/pkg/response"
	"meal_voucher/pkg/utils"

	"github.com/gin-gonic/gin"
)

type VoucherHandler struct {
	service service.VoucherService
}

func NewVoucherHandler(s service.VoucherService) *VoucherHandler {
	return &VoucherHandler{service: s}
}

type RedeemInput struct {
	VoucherCount int    `json:"voucherCount" binding:"required,min=1"`
	MealWindow   string `json:"mealWindow" binding:"required,mealwindow"`
	OrderID      string `json:"orderId" binding:"required"`
	KitchenID    string `json:"kitchenId" binding:"required"`
}

type RestoreOrderInput struct {
	OrderID string `json:"orderId" binding:"required"`
	Reason  string `json:"reason" binding:"required,oneof=ORDER_CANCELLED ORDER_REJECTED ADMIN_ACTION OTHER"`
}

type RestoreIDsInput struct {
	VoucherIDs []string `json:"voucherIds" binding:"required,min=1,dive,required"`
	Reason     string   `json:"reason" binding:"required,oneof=ORDER_CANCELLED ORDER_REJECTED ADMIN_ACTION OTHER"`
	Force      bool     `json:"force"`
}

type EligibilityInput struct {
	KitchenID          string `json:"kitchenId"`
	MenuType           string `json:"menuType" binding:"required"`
	MealWindow         string `json:"mealWindow" binding:"required,mealwindow"`
	MainCourseQuantity int    `json:"mainCourseQuantity" binding:"min=0"`
}

type ListInput struct {
	utils.Pagination
	Status string `form:"status" binding:"omitempty,oneof=AVAILABLE REDEEMED EXPIRED RESTORED CANCELLED"`
}

// Redeem 核销餐券
// @Summary 核销餐券
// @Tags Voucher
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body RedeemInput true "Redeem Info"
// @Success 200 {object} response.Response{data=service.RedeemResult}
// @Failure 409 {object} response.Response "Insufficient vouchers"
// @Router /vouchers/redeem [post]
func (h *VoucherHandler) Redeem(c *gin.Context) {
	var input RedeemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.Redeem(c.Request.Context(), service.RedeemParams{
		UserID:     middleware.GetUserID(c),
		Count:      input.VoucherCount,
		MealWindow: input.MealWindow,
		OrderID:    input.OrderID,
		KitchenID:  input.KitchenID,
	})
	if err != nil {
		response.HandleError(c, err, response.ErrVoucherNotFound)
		return
	}

	response.Success(c, result)
}

// RestoreForOrder 退回订单已核销的餐券
// @Summary 按订单退回餐券
// @Tags Voucher
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body RestoreOrderInput true "Restore Info"
// @Success 200 {object} response.Response{data=service.RestoreResult}
// @Router /vouchers/restore [post]
func (h *VoucherHandler) RestoreForOrder(c *gin.Context) {
	var input RestoreOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.RestoreForOrder(c.Request.Context(), input.OrderID, input.Reason)
	if err != nil {
		response.HandleError(c, err, response.ErrVoucherNotFound)
		return
	}

	response.Success(c, result)
}

// RestoreByIDs 按券 ID 退回，force 时允许退回已过期的券
// @Summary 按券 ID 退回餐券
// @Tags Voucher
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body RestoreIDsInput true "Restore Info"
// @Success 200 {object} response.Response{data=service.RestoreResult}
// @Router /vouchers/restore/ids [post]
func (h *VoucherHandler) RestoreByIDs(c *gin.Context) {
	var input RestoreIDsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.Restore(c.Request.Context(), input.VoucherIDs, input.Reason, input.Force)
	if err != nil {
		response.HandleError(c, err, response.ErrVoucherNotFound)
		return
	}

	response.Success(c, result)
}

// CheckEligibility 检查订单能否用券
// @Summary 用券资格检查
// @Tags Voucher
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body EligibilityInput true "Order Info"
// @Success 200 {object} response.Response{data=service.EligibilityResult}
// @Router /vouchers/eligibility [post]
func (h *VoucherHandler) CheckEligibility(c *gin.Context) {
	var input EligibilityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.CheckEligibility(c.Request.Context(), middleware.GetUserID(c), service.EligibilityRequest{
		KitchenID:          input.KitchenID,
		MenuType:           input.MenuType,
		MealWindow:         input.MealWindow,
		MainCourseQuantity: input.MainCourseQuantity,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, result)
}

// Balance 当前用户餐券概览
// @Summary 餐券余额
// @Tags Voucher
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} response.Response{data=service.Balance}
// @Router /vouchers/balance [get]
func (h *VoucherHandler) Balance(c *gin.Context) {
	balance, err := h.service.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, balance)
}

// List 当前用户餐券列表
// @Summary 餐券列表
// @Tags Voucher
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Param status query string false "Status"
// @Success 200 {object} response.Response{data=utils.PageResult}
// @Router /vouchers [get]
func (h *VoucherHandler) List(c *gin.Context) {
	var input ListInput
	if err := c.ShouldBindQuery(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.List(c.Request.Context(), middleware.GetUserID(c), input.Status, input.Pagination)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, result)
}

// SweepExpiry 手动触发过期清理
// @Summary 餐券过期清理
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} response.Response
// @Router /admin/vouchers/expire [post]
func (h *VoucherHandler) SweepExpiry(c *gin.Context) {
	count, err := h.service.SweepExpiry(c.Request.Context(), timeNow())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, gin.H{"expired": count})
}
