package worker

import (
	"context"
	"time"

	refundService "meal_voucher/internal/domain/refund/service"
	"meal_voucher/pkg/logger"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// 定时任务类型
const (
	TypeVoucherExpirySweep      = "voucher:expiry:sweep"
	TypeRefundFailedSweep       = "refund:failed:sweep"
	TypeSubscriptionExpirySweep = "subscription:expiry:sweep"
)

type VoucherSweeper interface {
	SweepExpiry(ctx context.Context, now time.Time) (int64, error)
}

type RefundSweeper interface {
	SweepFailed(ctx context.Context, now time.Time) (*refundService.SweepResult, error)
}

type SubscriptionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeps 定时任务依赖，为 nil 的任务不注册
type Sweeps struct {
	Vouchers      VoucherSweeper
	Refunds       RefundSweeper
	Subscriptions SubscriptionSweeper
	Now           func() time.Time
}

func (s *Sweeps) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// RegisterHandlers 注册任务处理函数
func RegisterHandlers(mux *asynq.ServeMux, s *Sweeps) {
	if s.Vouchers != nil {
		mux.HandleFunc(TypeVoucherExpirySweep, s.handleVoucherExpiry)
	}
	if s.Refunds != nil {
		mux.HandleFunc(TypeRefundFailedSweep, s.handleRefundRetry)
	}
	if s.Subscriptions != nil {
		mux.HandleFunc(TypeSubscriptionExpirySweep, s.handleSubscriptionExpiry)
	}
}

func (s *Sweeps) handleVoucherExpiry(ctx context.Context, t *asynq.Task) error {
	count, err := s.Vouchers.SweepExpiry(ctx, s.now())
	if err != nil {
		return err
	}
	logger.Log.Debug("task done", zap.String("task_type", t.Type()), zap.Int64("expired", count))
	return nil
}

func (s *Sweeps) handleRefundRetry(ctx context.Context, t *asynq.Task) error {
	result, err := s.Refunds.SweepFailed(ctx, s.now())
	if err != nil {
		return err
	}
	logger.Log.Debug("task done",
		zap.String("task_type", t.Type()),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
	)
	return nil
}

func (s *Sweeps) handleSubscriptionExpiry(ctx context.Context, t *asynq.Task) error {
	count, err := s.Subscriptions.SweepExpired(ctx, s.now())
	if err != nil {
		return err
	}
	logger.Log.Debug("task done", zap.String("task_type", t.Type()), zap.Int64("expired", count))
	return nil
}
