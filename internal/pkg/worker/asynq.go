package worker

import (
	"context"
	"time"

	"meal_voucher/internal/pkg/config"
	"meal_voucher/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RedisOpt asynq 使用的 Redis 连接参数
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewServer 清理任务都是幂等的，失败交给下一次调度，不做 asynq 重试
func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 2
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Log.Error("sweep task failed", zap.String("task_type", task.Type()), zap.Error(err))
		}),
	})
}

// ScheduleEntries cron 表达式到任务类型，表达式为空的任务不调度
func ScheduleEntries(cfg config.SweeperConfig) map[string]string {
	entries := make(map[string]string, 3)
	if cfg.VoucherExpiryCron != "" {
		entries[TypeVoucherExpirySweep] = cfg.VoucherExpiryCron
	}
	if cfg.RefundRetryCron != "" {
		entries[TypeRefundFailedSweep] = cfg.RefundRetryCron
	}
	if cfg.SubscriptionExpiryCron != "" {
		entries[TypeSubscriptionExpirySweep] = cfg.SubscriptionExpiryCron
	}
	return entries
}

// NewScheduler 注册周期任务；Unique 防止上一轮未完成时重复入队
func NewScheduler(redisOpt asynq.RedisConnOpt, cfg config.SweeperConfig, loc *time.Location) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: loc})

	for taskType, spec := range ScheduleEntries(cfg) {
		entryID, err := scheduler.Register(spec, asynq.NewTask(taskType, nil),
			asynq.MaxRetry(0),
			asynq.Unique(10*time.Minute),
		)
		if err != nil {
			return nil, err
		}
		logger.Log.Info("sweep scheduled",
			zap.String("task_type", taskType),
			zap.String("cron", spec),
			zap.String("entry_id", entryID),
		)
	}
	return scheduler, nil
}
