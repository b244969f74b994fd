package subscription

import (
	"meal_voucher/internal/domain/subscription/handler"
	"meal_voucher/internal/domain/subscription/repository"
	"meal_voucher/internal/domain/subscription/service"
	voucherRepo "meal_voucher/internal/domain/voucher/repository"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/internal/pkg/registry"
	"meal_voucher/pkg/cache"

	"github.com/gin-gonic/gin"
)

// SubscriptionModule 订阅模块
type SubscriptionModule struct{}

func init() {
	registry.Register(&SubscriptionModule{})
}

func (m *SubscriptionModule) Name() string {
	return "subscription"
}

func (m *SubscriptionModule) Priority() int {
	// 依赖餐券模块
	return 20
}

func (m *SubscriptionModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	vService := voucherService.NewVoucherService(voucherRepo.NewVoucherRepository(ctx.DB), ctx.Cutoff)
	sRepo := repository.NewSubscriptionRepository(ctx.DB)
	if ctx.Redis != nil {
		sRepo = repository.NewCachedPlanRepository(sRepo, cache.NewRedisCache(ctx.Redis, "meal_voucher:"))
	}
	sService := service.NewSubscriptionService(ctx.DB, sRepo, vService)
	sHandler := handler.NewSubscriptionHandler(sService)

	// 2. 路由注册
	setupRoutes(ctx.Router, sHandler)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.SubscriptionHandler) {
	g := r.Group("/subscriptions")
	g.GET("/plans", h.ListPlans)

	authorized := g.Group("")
	authorized.Use(middleware.AuthMiddleware())
	{
		authorized.POST("", h.Purchase)
		authorized.GET("", h.List)
		authorized.GET("/:id", h.Get)
		authorized.POST("/:id/cancel", h.Cancel)
	}

	admin := r.Group("/admin/subscriptions")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		admin.POST("/expire", h.SweepExpired)
	}
}
