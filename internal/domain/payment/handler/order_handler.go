package handler

import (
	"meal_voucher/internal/domain/payment/service"
	"meal_voucher/pkg/response"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(s service.OrderService) *OrderHandler {
	return &OrderHandler{service: s}
}

// Get 订单支付状态
// @Summary 订单支付状态
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /admin/orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, err, response.ErrOrderNotFound)
		return
	}
	response.Success(c, order)
}
