package service

import (
	"context"
	"errors"
	"math"
	"time"

	"meal_voucher/internal/domain/subscription/model"
	"meal_voucher/internal/domain/subscription/repository"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/pkg/database"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/logger"
	"meal_voucher/pkg/metrics"
	"meal_voucher/pkg/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PurchaseParams 购买订阅
type PurchaseParams struct {
	UserID     string
	PlanID     string
	PaymentID  string
	AmountPaid *int64 // nil 表示按套餐价格，0 为赠送
}

// PurchaseResult 订阅及发放的餐券数量
type PurchaseResult struct {
	Subscription   *model.Subscription `json:"subscription"`
	VouchersIssued int                 `json:"vouchersIssued"`
}

// CancelResult 取消结果
type CancelResult struct {
	Subscription      *model.Subscription `json:"subscription"`
	RefundEligible    bool                `json:"refundEligible"`
	RefundAmount      int64               `json:"refundAmount"`
	CancelledVouchers int64               `json:"cancelledVouchers"`
	UsagePercent      float64             `json:"usagePercent"`
}

type SubscriptionService interface {
	ListPlans(ctx context.Context) ([]model.SubscriptionPlan, error)
	Purchase(ctx context.Context, p PurchaseParams) (*PurchaseResult, error)
	Cancel(ctx context.Context, subscriptionID, reason, initiator string) (*CancelResult, error)
	Get(ctx context.Context, id string) (*model.Subscription, error)
	ListByUser(ctx context.Context, userID string, page utils.Pagination) (*utils.PageResult, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type subscriptionService struct {
	db       *gorm.DB
	repo     repository.SubscriptionRepository
	vouchers voucherService.VoucherService
	now      func() time.Time
}

type Option func(*subscriptionService)

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *subscriptionService) { s.now = now }
}

func NewSubscriptionService(db *gorm.DB, repo repository.SubscriptionRepository, vouchers voucherService.VoucherService, opts ...Option) SubscriptionService {
	s := &subscriptionService{
		db:       db,
		repo:     repo,
		vouchers: vouchers,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *subscriptionService) ListPlans(ctx context.Context) ([]model.SubscriptionPlan, error) {
	plans, err := s.repo.ListActivePlans(ctx, s.now())
	if err != nil {
		return nil, errutil.Internal("failed to list plans", err)
	}
	return plans, nil
}

func (s *subscriptionService) Purchase(ctx context.Context, p PurchaseParams) (*PurchaseResult, error) {
	if p.UserID == "" || p.PlanID == "" {
		return nil, errutil.ValidationFailed("user id and plan id are required")
	}
	if p.AmountPaid != nil && *p.AmountPaid < 0 {
		return nil, errutil.ValidationFailed("amount paid cannot be negative", errutil.WithDetail("amountPaid", "min 0"))
	}

	now := s.now()
	plan, err := s.repo.GetPlan(ctx, p.PlanID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errutil.NotFound("subscription plan not found", errutil.WithDetail("planId", p.PlanID))
		}
		return nil, errutil.Internal("failed to load plan", err)
	}
	if !plan.IsPurchasable(now) {
		return nil, errutil.ValidationFailed("subscription plan is not available", errutil.WithDetail("planId", p.PlanID))
	}
	if plan.TotalVouchers <= 0 || plan.DurationDays <= 0 {
		return nil, errutil.ValidationFailed("subscription plan is misconfigured", errutil.WithDetail("planId", p.PlanID))
	}

	validityDays := plan.VoucherValidityDays
	if validityDays <= 0 {
		validityDays = plan.DurationDays
	}

	amount := plan.Price
	if p.AmountPaid != nil {
		amount = *p.AmountPaid
	}

	sub := &model.Subscription{
		UserID:              p.UserID,
		PlanID:              plan.ID,
		PlanName:            plan.Name,
		DurationDays:        plan.DurationDays,
		VouchersPerDay:      plan.VouchersPerDay,
		TotalVouchers:       plan.TotalVouchers,
		Price:               plan.Price,
		PurchaseDate:        now,
		StartDate:           now,
		EndDate:             now.AddDate(0, 0, plan.DurationDays),
		TotalVouchersIssued: plan.TotalVouchers,
		VoucherExpiryDate:   now.AddDate(0, 0, validityDays),
		Status:              model.StatusActive,
		AmountPaid:          amount,
	}
	if p.PaymentID != "" {
		paymentID := p.PaymentID
		sub.PaymentID = &paymentID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, sub); err != nil {
			return err
		}
		_, err := s.vouchers.Issue(ctx, tx, voucherService.IssueParams{
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			Count:          sub.TotalVouchers,
			IssuedAt:       now,
			ExpiryDate:     sub.VoucherExpiryDate,
		})
		return err
	})
	if err != nil {
		if _, ok := errutil.As(err); ok {
			return nil, err
		}
		return nil, errutil.Internal("failed to create subscription", err)
	}

	metrics.GetGlobalCollector().RecordSubscriptionEvent("purchased")
	logger.FromContext(ctx).Info("subscription purchased",
		zap.String("subscription_id", sub.ID),
		zap.String("user_id", sub.UserID),
		zap.String("plan_id", sub.PlanID),
		zap.Int("vouchers", sub.TotalVouchers),
	)

	return &PurchaseResult{Subscription: sub, VouchersIssued: sub.TotalVouchers}, nil
}

// Cancel 取消订阅并作废剩余餐券，按使用比例计算可退金额
func (s *subscriptionService) Cancel(ctx context.Context, subscriptionID, reason, initiator string) (*CancelResult, error) {
	now := s.now()
	result := &CancelResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub, err := repo.GetForUpdate(ctx, subscriptionID)
		if err != nil {
			if database.IsNotFound(err) {
				return errutil.NotFound("subscription not found", errutil.WithDetail("subscriptionId", subscriptionID))
			}
			return errutil.Internal("failed to load subscription", err)
		}
		if sub.Status != model.StatusActive {
			return errutil.ValidationFailed("only active subscriptions can be cancelled",
				errutil.WithDetail("status", sub.Status))
		}

		redeemed, err := s.vouchers.CountRedeemedBySubscription(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		usage, eligible, amount := CalculateRefund(redeemed, int64(sub.TotalVouchersIssued), sub.AmountPaid)

		cancelled, err := s.vouchers.CancelBySubscription(ctx, tx, sub.ID, now)
		if err != nil {
			return err
		}

		fields := map[string]interface{}{
			"status":              model.StatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
			"cancelled_by":        initiator,
			"refund_eligible":     eligible,
			"refund_amount":       amount,
		}
		if err := repo.Update(ctx, sub.ID, fields); err != nil {
			return errutil.Internal("failed to cancel subscription", err)
		}

		sub.Status = model.StatusCancelled
		sub.CancelledAt = &now
		sub.CancellationReason = &reason
		sub.CancelledBy = &initiator
		sub.RefundEligible = &eligible
		sub.RefundAmount = &amount

		result.Subscription = sub
		result.RefundEligible = eligible
		result.RefundAmount = amount
		result.CancelledVouchers = cancelled
		result.UsagePercent = usage
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GetGlobalCollector().RecordSubscriptionEvent("cancelled")
	logger.FromContext(ctx).Info("subscription cancelled",
		zap.String("subscription_id", subscriptionID),
		zap.String("cancelled_by", initiator),
		zap.Float64("usage_percent", result.UsagePercent),
		zap.Bool("refund_eligible", result.RefundEligible),
		zap.Int64("refund_amount", result.RefundAmount),
		zap.Int64("cancelled_vouchers", result.CancelledVouchers),
	)
	return result, nil
}

// CalculateRefund 按已用比例 r 计算退款：r ≤ 25 可退，金额 = round(paid × (100 − 2r) / 100)
func CalculateRefund(redeemed, total, amountPaid int64) (usagePercent float64, eligible bool, amount int64) {
	if total <= 0 {
		return 0, false, 0
	}
	usagePercent = float64(redeemed) * 100 / float64(total)
	if usagePercent > model.RefundUsageLimit {
		return usagePercent, false, 0
	}
	factor := 100 - 2*usagePercent
	if factor < 0 {
		factor = 0
	}
	return usagePercent, true, int64(math.Round(float64(amountPaid) * factor / 100))
}

func (s *subscriptionService) Get(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("subscription not found", errutil.WithDetail("subscriptionId", id))
		}
		return nil, errutil.Internal("failed to load subscription", err)
	}
	return sub, nil
}

func (s *subscriptionService) ListByUser(ctx context.Context, userID string, page utils.Pagination) (*utils.PageResult, error) {
	offset, limit := page.GetPageOffset()
	subs, total, err := s.repo.ListByUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, errutil.Internal("failed to list subscriptions", err)
	}
	result := utils.NewPageResult(subs, total, page)
	return &result, nil
}

// SweepExpired 到期订阅改为 EXPIRED，餐券由餐券过期任务处理
func (s *subscriptionService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireEndedBefore(ctx, now.UTC())
	if err != nil {
		return 0, errutil.Internal("subscription expiry sweep failed", err)
	}
	metrics.GetGlobalCollector().RecordSweep("subscription_expiry")
	if count > 0 {
		logger.FromContext(ctx).Info("subscriptions expired", zap.Int64("count", count))
	}
	return count, nil
}
