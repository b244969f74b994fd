package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"meal_voucher/internal/domain/voucher/model"
	"meal_voucher/internal/domain/voucher/repository"
	"meal_voucher/internal/pkg/cutoff"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/logger"
	"meal_voucher/pkg/metrics"
	"meal_voucher/pkg/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RedeemParams 核销请求
type RedeemParams struct {
	UserID     string
	Count      int
	MealWindow string
	OrderID    string
	KitchenID  string
}

// RedeemResult 核销结果
type RedeemResult struct {
	VoucherIDs []string `json:"redeemedVoucherIds"`
	Count      int      `json:"count"`
}

// RestoreResult 退回结果，Count 可能小于 Requested
type RestoreResult struct {
	RestoredIDs []string `json:"restoredVoucherIds"`
	Requested   int      `json:"requested"`
	Count       int      `json:"count"`
}

// IssueParams 发券参数
type IssueParams struct {
	UserID         string
	SubscriptionID string
	Count          int
	IssuedAt       time.Time
	ExpiryDate     time.Time
}

// EligibilityRequest 用券资格检查
type EligibilityRequest struct {
	KitchenID          string
	MenuType           string
	MealWindow         string
	MainCourseQuantity int
}

// EligibilityResult 用券资格
type EligibilityResult struct {
	CanUseVoucher     bool         `json:"canUseVoucher"`
	AvailableVouchers int64        `json:"availableVouchers"`
	MaxRedeemable     int64        `json:"maxRedeemable"`
	CutoffInfo        *cutoff.Info `json:"cutoffInfo,omitempty"`
	Reason            string       `json:"reason,omitempty"`
}

// Balance 用户餐券概览 (实时统计，不做缓存)
type Balance struct {
	Usable     int64            `json:"usable"`
	ByStatus   map[string]int64 `json:"byStatus"`
	Total      int64            `json:"total"`
	NextExpiry *time.Time       `json:"nextExpiry,omitempty"`
}

type VoucherService interface {
	// Issue 批量发券，tx 不为空时在调用方事务内执行
	Issue(ctx context.Context, tx *gorm.DB, p IssueParams) ([]*model.Voucher, error)
	Redeem(ctx context.Context, p RedeemParams) (*RedeemResult, error)
	Restore(ctx context.Context, ids []string, reason string, force bool) (*RestoreResult, error)
	RestoreForOrder(ctx context.Context, orderID, reason string) (*RestoreResult, error)
	RedeemedForOrder(ctx context.Context, orderID string) ([]string, error)
	SweepExpiry(ctx context.Context, now time.Time) (int64, error)
	CancelBySubscription(ctx context.Context, tx *gorm.DB, subscriptionID string, now time.Time) (int64, error)
	CountRedeemedBySubscription(ctx context.Context, tx *gorm.DB, subscriptionID string) (int64, error)
	CheckEligibility(ctx context.Context, userID string, req EligibilityRequest) (*EligibilityResult, error)
	Balance(ctx context.Context, userID string) (*Balance, error)
	List(ctx context.Context, userID, status string, page utils.Pagination) (*utils.PageResult, error)
}

type voucherService struct {
	repo   repository.VoucherRepository
	policy *cutoff.Policy
	now    func() time.Time
}

type Option func(*voucherService)

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *voucherService) { s.now = now }
}

func NewVoucherService(repo repository.VoucherRepository, policy *cutoff.Policy, opts ...Option) VoucherService {
	if policy == nil {
		policy = cutoff.NewDefaultPolicy()
	}
	s := &voucherService{
		repo:   repo,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *voucherService) Issue(ctx context.Context, tx *gorm.DB, p IssueParams) ([]*model.Voucher, error) {
	if p.UserID == "" || p.Count <= 0 {
		return nil, errutil.ValidationFailed("user id and a positive voucher count are required")
	}
	if !p.ExpiryDate.After(p.IssuedAt) {
		return nil, errutil.ValidationFailed("voucher expiry must be after issue date")
	}

	var subscriptionID *string
	if p.SubscriptionID != "" {
		id := p.SubscriptionID
		subscriptionID = &id
	}

	vouchers := make([]*model.Voucher, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		vouchers = append(vouchers, &model.Voucher{
			UserID:         p.UserID,
			SubscriptionID: subscriptionID,
			IssuedDate:     p.IssuedAt.UTC(),
			ExpiryDate:     p.ExpiryDate.UTC(),
			Status:         model.StatusAvailable,
		})
	}

	if err := s.repo.WithTx(tx).CreateBatch(ctx, vouchers); err != nil {
		return nil, errutil.Internal("failed to issue vouchers", err)
	}

	metrics.GetGlobalCollector().RecordIssued(len(vouchers))
	return vouchers, nil
}

// Redeem 全部成功或全部失败
func (s *voucherService) Redeem(ctx context.Context, p RedeemParams) (*RedeemResult, error) {
	if p.Count < 1 {
		return nil, errutil.ValidationFailed("voucher count must be at least 1", errutil.WithDetail("voucherCount", "min 1"))
	}
	window, ok := cutoff.ParseMealWindow(p.MealWindow)
	if !ok {
		return nil, errutil.ValidationFailed("invalid meal window", errutil.WithDetail("mealWindow", p.MealWindow))
	}
	if p.UserID == "" || p.OrderID == "" {
		return nil, errutil.ValidationFailed("user id and order id are required")
	}

	ids, err := s.repo.ClaimUsable(ctx, repository.ClaimParams{
		UserID:     p.UserID,
		Count:      p.Count,
		OrderID:    p.OrderID,
		KitchenID:  p.KitchenID,
		MealWindow: string(window),
		Now:        s.now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientVouchers) {
			metrics.GetGlobalCollector().RecordRedemption("insufficient")
			available, _ := s.repo.CountUsable(ctx, p.UserID, s.now())
			return nil, errutil.InsufficientVouchers(
				fmt.Sprintf("requested %d vouchers, %d available", p.Count, available),
				errutil.WithDetail("available", fmt.Sprintf("%d", available)),
			)
		}
		metrics.GetGlobalCollector().RecordRedemption("error")
		return nil, errutil.Internal("failed to redeem vouchers", err)
	}

	metrics.GetGlobalCollector().RecordRedemption("success")
	logger.FromContext(ctx).Info("vouchers redeemed",
		zap.String("user_id", p.UserID),
		zap.String("order_id", p.OrderID),
		zap.String("meal_window", string(window)),
		zap.Int("count", len(ids)),
	)

	return &RedeemResult{VoucherIDs: ids, Count: len(ids)}, nil
}

func (s *voucherService) Restore(ctx context.Context, ids []string, reason string, force bool) (*RestoreResult, error) {
	if !model.IsValidRestorationReason(reason) {
		return nil, errutil.ValidationFailed("invalid restoration reason", errutil.WithDetail("reason", reason))
	}
	if len(ids) == 0 {
		return &RestoreResult{RestoredIDs: []string{}}, nil
	}

	from := []string{model.StatusRedeemed}
	if force {
		from = append(from, model.StatusExpired)
	}

	restored, err := s.repo.Restore(ctx, ids, from, reason, s.now())
	if err != nil {
		return nil, errutil.Internal("failed to restore vouchers", err)
	}
	if restored == nil {
		restored = []string{}
	}

	if len(restored) < len(ids) {
		logger.FromContext(ctx).Warn("some vouchers were not restorable",
			zap.Int("requested", len(ids)),
			zap.Int("restored", len(restored)),
			zap.String("reason", reason),
			zap.Bool("force", force),
		)
	}
	if len(restored) > 0 {
		metrics.GetGlobalCollector().RecordRestored(reason, len(restored))
	}

	return &RestoreResult{RestoredIDs: restored, Requested: len(ids), Count: len(restored)}, nil
}

// RestoreForOrder 退回订单当前已核销的全部券
func (s *voucherService) RestoreForOrder(ctx context.Context, orderID, reason string) (*RestoreResult, error) {
	if orderID == "" {
		return nil, errutil.ValidationFailed("order id is required")
	}
	ids, err := s.RedeemedForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.Restore(ctx, ids, reason, false)
}

func (s *voucherService) RedeemedForOrder(ctx context.Context, orderID string) ([]string, error) {
	ids, err := s.repo.FindRedeemedIDsByOrder(ctx, orderID)
	if err != nil {
		return nil, errutil.Internal("failed to load order vouchers", err)
	}
	return ids, nil
}

func (s *voucherService) SweepExpiry(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireBefore(ctx, now.UTC())
	if err != nil {
		return 0, errutil.Internal("voucher expiry sweep failed", err)
	}

	metrics.GetGlobalCollector().RecordSweep("voucher_expiry")
	if count > 0 {
		metrics.GetGlobalCollector().RecordExpired(count)
		logger.FromContext(ctx).Info("vouchers expired", zap.Int64("count", count), zap.Time("now", now))
	}
	return count, nil
}

func (s *voucherService) CancelBySubscription(ctx context.Context, tx *gorm.DB, subscriptionID string, now time.Time) (int64, error) {
	count, err := s.repo.WithTx(tx).CancelBySubscription(ctx, subscriptionID, now.UTC())
	if err != nil {
		return 0, errutil.Internal("failed to cancel subscription vouchers", err)
	}
	return count, nil
}

func (s *voucherService) CountRedeemedBySubscription(ctx context.Context, tx *gorm.DB, subscriptionID string) (int64, error) {
	count, err := s.repo.WithTx(tx).CountBySubscription(ctx, subscriptionID, model.StatusRedeemed)
	if err != nil {
		return 0, errutil.Internal("failed to count redeemed vouchers", err)
	}
	return count, nil
}

// CheckEligibility 正餐订单 + 餐段未截单 + 至少一张可用券
func (s *voucherService) CheckEligibility(ctx context.Context, userID string, req EligibilityRequest) (*EligibilityResult, error) {
	window, ok := cutoff.ParseMealWindow(req.MealWindow)
	if !ok {
		return nil, errutil.ValidationFailed("invalid meal window", errutil.WithDetail("mealWindow", req.MealWindow))
	}

	now := s.now()
	available, err := s.repo.CountUsable(ctx, userID, now)
	if err != nil {
		return nil, errutil.Internal("failed to count usable vouchers", err)
	}

	info := s.policy.Describe(window, now)
	result := &EligibilityResult{
		AvailableVouchers: available,
		CutoffInfo:        &info,
	}

	switch {
	case req.MenuType != model.MenuTypeMeal:
		result.Reason = "vouchers can only be used for MEAL orders"
	case !info.IsOpen:
		result.Reason = info.Message
	case available == 0:
		result.Reason = "no usable vouchers"
	default:
		requested := int64(req.MainCourseQuantity)
		if requested < 1 {
			requested = 1
		}
		result.CanUseVoucher = true
		result.MaxRedeemable = min(available, requested)
	}

	return result, nil
}

func (s *voucherService) Balance(ctx context.Context, userID string) (*Balance, error) {
	now := s.now()

	usable, err := s.repo.CountUsable(ctx, userID, now)
	if err != nil {
		return nil, errutil.Internal("failed to count usable vouchers", err)
	}
	rows, err := s.repo.CountByStatus(ctx, userID)
	if err != nil {
		return nil, errutil.Internal("failed to count vouchers", err)
	}
	next, err := s.repo.NearestExpiry(ctx, userID, now)
	if err != nil {
		return nil, errutil.Internal("failed to load nearest expiry", err)
	}

	b := &Balance{Usable: usable, ByStatus: make(map[string]int64), NextExpiry: next}
	for _, row := range rows {
		b.ByStatus[row.Status] = row.Count
		b.Total += row.Count
	}
	return b, nil
}

func (s *voucherService) List(ctx context.Context, userID, status string, page utils.Pagination) (*utils.PageResult, error) {
	offset, limit := page.GetPageOffset()
	vouchers, total, err := s.repo.List(ctx, userID, status, offset, limit)
	if err != nil {
		return nil, errutil.Internal("failed to list vouchers", err)
	}
	result := utils.NewPageResult(vouchers, total, page)
	return &result, nil
}
