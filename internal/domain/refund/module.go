package refund

import (
	paymentRepo "meal_voucher/internal/domain/payment/repository"
	paymentService "meal_voucher/internal/domain/payment/service"
	"meal_voucher/internal/domain/payment/strategy"
	"meal_voucher/internal/domain/refund/handler"
	"meal_voucher/internal/domain/refund/repository"
	"meal_voucher/internal/domain/refund/service"
	voucherRepo "meal_voucher/internal/domain/voucher/repository"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// RefundModule 退款模块
type RefundModule struct{}

func init() {
	registry.Register(&RefundModule{})
}

func (m *RefundModule) Name() string {
	return "refund"
}

func (m *RefundModule) Priority() int {
	// 依赖订单与餐券
	return 30
}

func (m *RefundModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	rService := NewService(ctx)
	rHandler := handler.NewRefundHandler(rService)

	// 2. 路由注册
	setupRoutes(ctx.Router, rHandler)

	return nil
}

// NewService 按模块上下文装配退款服务，HTTP 与清理任务共用
func NewService(ctx *registry.ModuleContext) service.RefundService {
	orders := paymentService.NewOrderService(paymentRepo.NewOrderRepository(ctx.DB))
	vouchers := voucherService.NewVoucherService(voucherRepo.NewVoucherRepository(ctx.DB), ctx.Cutoff)

	opts := []service.Option{service.WithPush(ctx.Push)}
	if ctx.Config != nil {
		cfg := ctx.Config.Refund
		opts = append(opts,
			service.WithRetryPolicy(cfg.MaxRetries, cfg.RetryDelay),
			service.WithGatewayTimeout(cfg.GatewayTimeout),
		)
		if ctx.Locker != nil {
			opts = append(opts, service.WithLocker(ctx.Locker, cfg.LockTTL))
		}
	}

	var gateway *strategy.Router
	if ctx.Config != nil {
		gateway = strategy.NewRouterFromConfig(ctx.Config)
	} else {
		gateway = strategy.NewRouter()
	}

	return service.NewRefundService(ctx.DB, repository.NewRefundRepository(ctx.DB), orders, vouchers, gateway, opts...)
}

func setupRoutes(r *gin.Engine, h *handler.RefundHandler) {
	g := r.Group("/refunds")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("/:id", h.Get)
		g.GET("/no/:refundNo", h.GetByNo)
		g.GET("/order/:orderId", h.ListByOrder)

		// 发起退款由订单系统或管理员调用
		g.POST("", middleware.AdminMiddleware(), h.Initiate)
	}

	admin := r.Group("/admin/refunds")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.GET("", h.List)
		admin.POST("/sweep", h.SweepFailed)
		admin.POST("/:id/process", h.Process)
		admin.POST("/:id/approve", h.Approve)
		admin.POST("/:id/retry", h.Retry)
		admin.POST("/:id/cancel", h.Cancel)
	}
}
