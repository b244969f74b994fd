package voucher

import (
	"meal_voucher/internal/domain/voucher/handler"
	"meal_voucher/internal/domain/voucher/repository"
	"meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	defaultRedeemRate  = 2
	defaultRedeemBurst = 5
)

// VoucherModule 餐券模块
type VoucherModule struct{}

func init() {
	registry.Register(&VoucherModule{})
}

func (m *VoucherModule) Name() string {
	return "voucher"
}

func (m *VoucherModule) Priority() int {
	return 10
}

func (m *VoucherModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	vRepo := repository.NewVoucherRepository(ctx.DB)
	vService := service.NewVoucherService(vRepo, ctx.Cutoff)
	vHandler := handler.NewVoucherHandler(vService)
	cHandler := handler.NewCutoffHandler(ctx.Cutoff)

	redeemRate, redeemBurst := rate.Limit(defaultRedeemRate), defaultRedeemBurst
	if ctx.Config != nil {
		if ctx.Config.Voucher.RedeemRatePerSecond > 0 {
			redeemRate = rate.Limit(ctx.Config.Voucher.RedeemRatePerSecond)
		}
		if ctx.Config.Voucher.RedeemBurst > 0 {
			redeemBurst = ctx.Config.Voucher.RedeemBurst
		}
	}
	redeemLimiter := middleware.NewKeyedRateLimiter(redeemRate, redeemBurst)

	// 2. 路由注册
	setupRoutes(ctx.Router, vHandler, cHandler, redeemLimiter)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.VoucherHandler, ch *handler.CutoffHandler, redeemLimiter *middleware.KeyedRateLimiter) {
	// 截单时间公开查询
	r.GET("/cutoff", ch.Get)

	g := r.Group("/vouchers")
	g.Use(middleware.AuthMiddleware())
	{
		g.GET("", h.List)
		g.GET("/balance", h.Balance)
		g.POST("/redeem", middleware.UserRateLimitMiddleware(redeemLimiter), h.Redeem)
		g.POST("/eligibility", h.CheckEligibility)

		// 退回由订单系统或管理员发起
		admin := g.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.POST("/restore", h.RestoreForOrder)
			admin.POST("/restore/ids", h.RestoreByIDs)
		}
	}

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AuthMiddleware(), middleware.AdminMiddleware())
	{
		adminGroup.POST("/vouchers/expire", h.SweepExpiry)
		adminGroup.PUT("/cutoff", ch.Update)
	}
}
