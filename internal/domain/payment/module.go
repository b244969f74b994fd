package payment

import (
	"meal_voucher/internal/domain/payment/handler"
	"meal_voucher/internal/domain/payment/repository"
	"meal_voucher/internal/domain/payment/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// PaymentModule 订单支付状态查询，退款网关由退款模块装配
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	return 10
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	oRepo := repository.NewOrderRepository(ctx.DB)
	oService := service.NewOrderService(oRepo)
	oHandler := handler.NewOrderHandler(oService)

	setupRoutes(ctx.Router, oHandler)
	return nil
}

func setupRoutes(r *gin.Engine, h *handler.OrderHandler) {
	admin := r.Group("/admin/orders")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.GET("/:id", h.Get)
	}
}
