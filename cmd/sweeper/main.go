package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"meal_voucher/internal/domain/refund"
	subscriptionRepo "meal_voucher/internal/domain/subscription/repository"
	subscriptionService "meal_voucher/internal/domain/subscription/service"
	voucherRepo "meal_voucher/internal/domain/voucher/repository"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/bootstrap"
	"meal_voucher/internal/pkg/worker"
	"meal_voucher/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// 定时清理进程：餐券过期、订阅到期、失败退款重试
func main() {
	cfg := bootstrap.Init()
	defer logger.Sync()

	moduleCtx := bootstrap.NewModuleContext(cfg, nil)

	vouchers := voucherService.NewVoucherService(voucherRepo.NewVoucherRepository(moduleCtx.DB), moduleCtx.Cutoff)
	subscriptions := subscriptionService.NewSubscriptionService(moduleCtx.DB,
		subscriptionRepo.NewSubscriptionRepository(moduleCtx.DB), vouchers)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, &worker.Sweeps{
		Vouchers:      vouchers,
		Refunds:       refund.NewService(moduleCtx),
		Subscriptions: subscriptions,
	})

	redisOpt := worker.RedisOpt(cfg.Redis)
	loc, err := time.LoadLocation(cfg.Voucher.Timezone)
	if err != nil {
		loc = time.UTC
	}
	scheduler, err := worker.NewScheduler(redisOpt, cfg.Sweeper, loc)
	if err != nil {
		logger.Log.Fatal("failed to register sweep schedule", zap.Error(err))
	}
	server := worker.NewServer(redisOpt, cfg.Sweeper.Concurrency)

	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("failed to start scheduler", zap.Error(err))
	}
	if err := server.Start(mux); err != nil {
		logger.Log.Fatal("failed to start sweep worker", zap.Error(err))
	}
	logger.Log.Info("sweeper started", zap.String("redis", cfg.Redis.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	scheduler.Shutdown()
	server.Shutdown()
	logger.Log.Info("sweeper exited")
}
