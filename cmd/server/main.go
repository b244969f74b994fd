package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "meal_voucher/docs"
	_ "meal_voucher/internal/domain/payment"
	_ "meal_voucher/internal/domain/refund"
	_ "meal_voucher/internal/domain/subscription"
	_ "meal_voucher/internal/domain/voucher"
	"meal_voucher/internal/pkg/bootstrap"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/internal/pkg/registry"
	"meal_voucher/internal/pkg/validation"
	"meal_voucher/pkg/logger"
	"meal_voucher/pkg/metrics"
	"meal_voucher/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// @title Meal Voucher API
// @version 1.0
// @description 餐券账本与退款结算
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	cfg := bootstrap.Init()
	defer logger.Sync()

	gin.SetMode(cfg.Server.Mode)
	validation.Register()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.MetricsMiddleware(metrics.GetGlobalCollector()))
	r.Use(middleware.RateLimitMiddleware(middleware.NewKeyedRateLimiter(rate.Limit(50), 100)))

	corsCfg := cors.DefaultConfig()
	if len(cfg.Server.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowHeaders("Authorization", middleware.HeaderTraceID)
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.App.Debug {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	moduleCtx := bootstrap.NewModuleContext(cfg, r)
	if err := registry.InitModules(moduleCtx); err != nil {
		logger.Log.Fatal("failed to init modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("server forced to shutdown", zap.Error(err))
	}

	if sqlDB, err := moduleCtx.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = moduleCtx.Redis.Close()
	logger.Log.Info("server exited")
}
