package bootstrap

import (
	"errors"

	"meal_voucher/internal/pkg/config"
	"meal_voucher/internal/pkg/cutoff"
	"meal_voucher/internal/pkg/lock"
	"meal_voucher/internal/pkg/push"
	"meal_voucher/internal/pkg/registry"
	"meal_voucher/pkg/database"
	"meal_voucher/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Init 加载配置并初始化日志
func Init() *config.Config {
	config.LoadConfig()
	cfg := &config.GlobalConfig

	logger.Init(logger.Options{
		FilePath:   cfg.Log.File,
		Level:      cfg.Log.Level,
		Production: cfg.App.Env == "prod",
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	return cfg
}

// NewModuleContext 连接数据库与 Redis，装配模块共享依赖；router 可为 nil
func NewModuleContext(cfg *config.Config, router *gin.Engine) *registry.ModuleContext {
	db := database.InitDatabase()
	rdb := database.InitRedis()

	policy, err := cutoff.NewPolicy(cfg.Voucher.LunchCutoff, cfg.Voucher.DinnerCutoff, cfg.Voucher.Timezone)
	if err != nil {
		logger.Log.Fatal("invalid cutoff configuration", zap.Error(err))
	}

	ctx := &registry.ModuleContext{
		DB:     db,
		Redis:  rdb,
		Router: router,
		Config: cfg,
		Cutoff: policy,
		Locker: lock.NewRedisLocker(rdb, "meal_voucher:lock:"),
	}

	pushSvc, err := push.NewAliyunPushService(cfg.Push)
	switch {
	case errors.Is(err, push.ErrPushNotConfigured):
		logger.Log.Info("push notifications disabled")
	case err != nil:
		logger.Log.Error("failed to init push service", zap.Error(err))
	default:
		ctx.Push = pushSvc
	}

	return ctx
}
