package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paymentModel "meal_voucher/internal/domain/payment/model"
	paymentService "meal_voucher/internal/domain/payment/service"
	"meal_voucher/internal/domain/payment/strategy"
	"meal_voucher/internal/domain/refund/model"
	"meal_voucher/internal/domain/refund/repository"
	voucherModel "meal_voucher/internal/domain/voucher/model"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/lock"
	"meal_voucher/internal/pkg/push"
	"meal_voucher/pkg/database"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/logger"
	"meal_voucher/pkg/metrics"
	"meal_voucher/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = time.Hour
	DefaultLockTTL        = 30 * time.Second
	DefaultGatewayTimeout = 15 * time.Second
)

// Gateway 按渠道执行退款，strategy.Router 即为实现
type Gateway interface {
	Refund(ctx context.Context, channel string, req strategy.RefundRequest) (*strategy.RefundResult, error)
}

// InitiateParams 发起退款
type InitiateParams struct {
	OrderID         string
	Reason          string
	ReasonDetails   string
	RefundType      string // FULL / PARTIAL，默认 FULL
	Amount          int64  // PARTIAL 时必填
	InitiatedBy     string
	RequireApproval bool
}

// InitiateResult 纯餐券订单不产生退款单，Refund 为 nil
type InitiateResult struct {
	Refund             *model.Refund `json:"refund,omitempty"`
	VouchersRestored   bool          `json:"vouchersRestored"`
	RestoredVoucherIDs []string      `json:"restoredVoucherIds"`
	Message            string        `json:"message"`
}

// SweepResult 失败重试统计
type SweepResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type RefundService interface {
	Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error)
	Process(ctx context.Context, refundID string) (*model.Refund, bool, error)
	SweepFailed(ctx context.Context, now time.Time) (*SweepResult, error)
	Approve(ctx context.Context, refundID, adminID string) (*model.Refund, bool, error)
	Cancel(ctx context.Context, refundID, reason string) (*model.Refund, error)
	Retry(ctx context.Context, refundID string) (*model.Refund, bool, error)
	Get(ctx context.Context, id string) (*model.Refund, error)
	GetByNo(ctx context.Context, refundNo string) (*model.Refund, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.Refund, error)
	List(ctx context.Context, f repository.Filter, page utils.Pagination) (*utils.PageResult, error)
}

type refundService struct {
	db       *gorm.DB
	repo     repository.RefundRepository
	orders   paymentService.OrderService
	vouchers voucherService.VoucherService
	gateway  Gateway

	locker         lock.Locker
	lockTTL        time.Duration
	pusher         push.PushService
	maxRetries     int
	retryDelay     time.Duration
	gatewayTimeout time.Duration
	now            func() time.Time
}

type Option func(*refundService)

// WithLocker 发起退款时额外持有订单租约
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(s *refundService) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithRetryPolicy 自动重试次数与间隔
func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(s *refundService) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if delay > 0 {
			s.retryDelay = delay
		}
	}
}

func WithGatewayTimeout(d time.Duration) Option {
	return func(s *refundService) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

func WithPush(p push.PushService) Option {
	return func(s *refundService) { s.pusher = p }
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *refundService) { s.now = now }
}

func NewRefundService(
	db *gorm.DB,
	repo repository.RefundRepository,
	orders paymentService.OrderService,
	vouchers voucherService.VoucherService,
	gateway Gateway,
	opts ...Option,
) RefundService {
	s := &refundService{
		db:             db,
		repo:           repo,
		orders:         orders,
		vouchers:       vouchers,
		gateway:        gateway,
		lockTTL:        DefaultLockTTL,
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		gatewayTimeout: DefaultGatewayTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRefundNo(now time.Time) string {
	return "RF" + now.Format("20060102150405") + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func (s *refundService) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	// 1. 参数校验
	if p.OrderID == "" {
		return nil, errutil.ValidationFailed("order id is required")
	}
	if !voucherModel.IsValidRestorationReason(p.Reason) {
		return nil, errutil.ValidationFailed("invalid refund reason", errutil.WithDetail("reason", p.Reason))
	}
	if p.RefundType == "" {
		p.RefundType = model.TypeFull
	}
	switch p.RefundType {
	case model.TypeFull:
	case model.TypePartial:
		if p.Amount <= 0 {
			return nil, errutil.ValidationFailed("partial refund requires a positive amount", errutil.WithDetail("amount", "must be > 0"))
		}
	default:
		return nil, errutil.ValidationFailed("invalid refund type", errutil.WithDetail("refundType", p.RefundType))
	}

	// 2. 订单租约，未取得说明同一订单正在发起退款
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "refund:order:"+p.OrderID, s.lockTTL)
		switch {
		case errors.Is(err, lock.ErrNotAcquired):
			return nil, errutil.Conflict("a refund is already being initiated for this order",
				errutil.WithDetail("orderId", p.OrderID))
		case err != nil:
			// 租约只是前置保护，唯一索引仍然兜底
			logger.FromContext(ctx).Warn("order lease unavailable, relying on database constraint",
				zap.String("order_id", p.OrderID), zap.Error(err))
		default:
			defer release()
		}
	}

	// 3. 加载订单
	order, err := s.orders.Get(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}

	// 4. 进行中的退款
	if err := s.ensureNoActiveRefund(ctx, p.OrderID); err != nil {
		return nil, err
	}

	// 5. 纯餐券订单只退券
	if order.IsVoucherOnly() {
		return s.restoreVoucherOnlyOrder(ctx, order, p.Reason)
	}

	// 6. 可退金额
	refunded, err := s.repo.SumCompleted(ctx, order.ID)
	if err != nil {
		return nil, errutil.Internal("failed to sum completed refunds", err)
	}
	refundable := order.AmountPaid - refunded
	if refundable <= 0 {
		return nil, errutil.ValidationFailed("order has already been fully refunded",
			errutil.WithDetail("amountPaid", fmt.Sprintf("%d", order.AmountPaid)))
	}
	amount := refundable
	if p.RefundType == model.TypePartial {
		if p.Amount > refundable {
			return nil, errutil.ValidationFailed("refund amount exceeds refundable balance",
				errutil.WithDetail("refundable", fmt.Sprintf("%d", refundable)))
		}
		amount = p.Amount
	}

	// 7. 插入退款单并占用订单名额
	now := s.now()
	status := model.StatusInitiated
	note := "refund initiated"
	if p.RequireApproval {
		status = model.StatusPending
		note = "refund awaiting approval"
	}
	if p.InitiatedBy != "" {
		note += " by " + p.InitiatedBy
	}

	orderID := order.ID
	refund := &model.Refund{
		RefundNo:          newRefundNo(now),
		OrderID:           order.ID,
		UserID:            order.UserID,
		Amount:            amount,
		RefundType:        p.RefundType,
		Reason:            p.Reason,
		ReasonDetails:     p.ReasonDetails,
		Status:            status,
		OriginalPaymentID: order.PaymentID,
		Channel:           order.Channel,
		InitiatedBy:       p.InitiatedBy,
		ActiveOrderID:     &orderID,
	}
	refund.StatusTimeline = refund.WithEntry(status, note, now)

	if err := s.repo.Create(ctx, refund); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, s.conflictFor(ctx, order.ID)
		}
		return nil, errutil.Internal("failed to create refund", err)
	}
	metrics.GetGlobalCollector().RecordRefundTransition(status)
	logger.FromContext(ctx).Info("refund initiated",
		zap.String("refund_no", refund.RefundNo),
		zap.String("order_id", order.ID),
		zap.Int64("amount", amount),
		zap.String("status", status),
	)

	// 8. 退回订单用过的餐券，结果记录在退款单上
	result := &InitiateResult{Refund: refund, RestoredVoucherIDs: []string{}, Message: note}
	if order.VoucherCount > 0 {
		s.restoreVouchersForRefund(ctx, refund, result)
	}
	return result, nil
}

func (s *refundService) ensureNoActiveRefund(ctx context.Context, orderID string) error {
	active, err := s.repo.FindActiveByOrder(ctx, orderID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil
		}
		return errutil.Internal("failed to check active refunds", err)
	}
	return activeConflict(active)
}

func activeConflict(active *model.Refund) error {
	return errutil.Conflict("a refund is already in progress for this order",
		errutil.WithDetail("refundNo", active.RefundNo),
		errutil.WithDetail("status", active.Status),
	)
}

// conflictFor 插入被唯一索引拒绝后，带上胜出的退款单信息
func (s *refundService) conflictFor(ctx context.Context, orderID string) error {
	if active, err := s.repo.FindActiveByOrder(ctx, orderID); err == nil {
		return activeConflict(active)
	}
	return errutil.Conflict("a refund is already in progress for this order", errutil.WithDetail("orderId", orderID))
}

func (s *refundService) restoreVoucherOnlyOrder(ctx context.Context, order *paymentModel.Order, reason string) (*InitiateResult, error) {
	ids, err := s.vouchers.RedeemedForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if order.VoucherCount == 0 {
			return nil, errutil.ValidationFailed("order has neither payment nor vouchers to refund",
				errutil.WithDetail("orderId", order.ID))
		}
		return nil, errutil.Conflict("order vouchers have already been restored", errutil.WithDetail("orderId", order.ID))
	}

	restored, err := s.vouchers.Restore(ctx, ids, reason, false)
	if err != nil {
		return nil, err
	}
	if restored.Count == 0 {
		return nil, errutil.Conflict("order vouchers have already been restored", errutil.WithDetail("orderId", order.ID))
	}

	logger.FromContext(ctx).Info("voucher-only order refunded with vouchers",
		zap.String("order_id", order.ID),
		zap.Int("restored", restored.Count),
	)
	return &InitiateResult{
		VouchersRestored:   true,
		RestoredVoucherIDs: restored.RestoredIDs,
		Message:            fmt.Sprintf("restored %d vouchers, no monetary refund required", restored.Count),
	}, nil
}

// restoreVouchersForRefund 退券失败不影响退款，但必须写进时间线
func (s *refundService) restoreVouchersForRefund(ctx context.Context, refund *model.Refund, result *InitiateResult) {
	restored, err := s.vouchers.RestoreForOrder(ctx, refund.OrderID, refund.Reason)

	var note string
	fields := map[string]interface{}{}
	switch {
	case err != nil:
		note = "voucher restoration failed: " + err.Error()
		logger.FromContext(ctx).Error("voucher restoration failed during refund",
			zap.String("refund_no", refund.RefundNo), zap.Error(err))
	case restored.Count == 0:
		note = "no vouchers to restore"
	default:
		note = fmt.Sprintf("restored %d vouchers", restored.Count)
		fields["vouchers_restored"] = true
		fields["restored_voucher_ids"] = datatypes.JSONSlice[string](restored.RestoredIDs)
		result.VouchersRestored = true
		result.RestoredVoucherIDs = restored.RestoredIDs
	}

	updated, err := s.annotate(ctx, refund.ID, note, fields)
	if err != nil {
		logger.FromContext(ctx).Error("failed to record voucher restoration on refund",
			zap.String("refund_no", refund.RefundNo), zap.String("note", note), zap.Error(err))
		return
	}
	result.Refund = updated
}

// annotate 不改变状态地追加时间线，状态被并发修改时重读重试
func (s *refundService) annotate(ctx context.Context, id, note string, fields map[string]interface{}) (*model.Refund, error) {
	for attempt := 0; attempt < 3; attempt++ {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		update := map[string]interface{}{"status_timeline": current.WithEntry(current.Status, note, s.now())}
		for k, v := range fields {
			update[k] = v
		}
		ok, err := s.repo.Transition(ctx, id, current.Status, update)
		if err != nil {
			return nil, err
		}
		if ok {
			return s.repo.GetByID(ctx, id)
		}
	}
	return nil, errors.New("refund status kept changing while recording note")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// processMode 处理入口
type processMode int

const (
	modeDirect processMode = iota
	modeSweep
	modeManualRetry
)

// Process 调用网关执行退款；网关失败记录为 FAILED，返回 succeeded=false 而不是 error
func (s *refundService) Process(ctx context.Context, refundID string) (*model.Refund, bool, error) {
	return s.process(ctx, refundID, modeDirect)
}

// process 校验失败时不修改退款单，定时重试遇到余额耗尽的情况除外
func (s *refundService) process(ctx context.Context, refundID string, mode processMode) (*model.Refund, bool, error) {
	refund, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, false, err
	}
	if mode == modeManualRetry && refund.Status != model.StatusFailed {
		return nil, false, errutil.ValidationFailed("only failed refunds can be retried",
			errutil.WithDetail("status", refund.Status))
	}
	if !contains(model.ProcessableStatuses, refund.Status) {
		return nil, false, errutil.ValidationFailed("refund cannot be processed in its current status",
			errutil.WithDetail("status", refund.Status))
	}

	order, err := s.orders.Get(ctx, refund.OrderID)
	if err != nil {
		return nil, false, err
	}

	// 1. 余额预检
	refunded, err := s.repo.SumCompleted(ctx, order.ID)
	if err != nil {
		return nil, false, errutil.Internal("failed to sum completed refunds", err)
	}
	if refundable := order.AmountPaid - refunded; refund.Amount > refundable {
		if mode == modeSweep && refund.Status == model.StatusFailed {
			s.parkExhausted(ctx, refund, refundable)
		}
		return nil, false, errutil.ValidationFailed("refund amount exceeds refundable balance",
			errutil.WithDetail("refundable", fmt.Sprintf("%d", refundable)))
	}

	// 2. 切换到 PROCESSING 并重新占用订单名额，同一事务内复核余额
	//    人工重试的计数清零与状态切换一起提交，事务回滚时不留痕迹
	now := s.now()
	fields := map[string]interface{}{
		"status":          model.StatusProcessing,
		"active_order_id": refund.OrderID,
		"next_retry_at":   nil,
	}
	if mode == modeManualRetry {
		fields["retry_count"] = 0
		refund.StatusTimeline = refund.WithEntry(model.StatusFailed, "manual retry requested", now)
	}
	fields["status_timeline"] = refund.WithEntry(model.StatusProcessing, "submitted to "+refund.Channel, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, refund.ID, refund.Status, fields)
		if err != nil {
			if database.IsDuplicateKey(err) {
				return errutil.Conflict("another refund is in progress for this order",
					errutil.WithDetail("orderId", refund.OrderID))
			}
			return errutil.Internal("failed to mark refund processing", err)
		}
		if !ok {
			return errutil.Conflict("refund status changed concurrently", errutil.WithDetail("refundNo", refund.RefundNo))
		}

		refunded, err := repo.SumCompleted(ctx, order.ID)
		if err != nil {
			return errutil.Internal("failed to sum completed refunds", err)
		}
		if refund.Amount > order.AmountPaid-refunded {
			return errutil.ValidationFailed("refund amount exceeds refundable balance",
				errutil.WithDetail("refundable", fmt.Sprintf("%d", order.AmountPaid-refunded)))
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	metrics.GetGlobalCollector().RecordRefundTransition(model.StatusProcessing)

	refund, err = s.repo.GetByID(ctx, refund.ID)
	if err != nil {
		return nil, false, errutil.Internal("failed to reload refund", err)
	}

	// 3. 网关调用在事务之外
	paymentID := order.OrderNo
	if refund.OriginalPaymentID != nil && *refund.OriginalPaymentID != "" {
		paymentID = *refund.OriginalPaymentID
	}
	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	start := time.Now()
	result, gwErr := s.gateway.Refund(gwCtx, refund.Channel, strategy.RefundRequest{
		PaymentID:   paymentID,
		RefundNo:    refund.RefundNo,
		Amount:      refund.Amount,
		TotalAmount: order.AmountPaid,
		Reason:      refund.Reason,
	})
	cancel()
	metrics.GetGlobalCollector().RecordGatewayCall(refund.Channel, gwErr == nil, time.Since(start))

	if gwErr != nil {
		failed, err := s.markFailed(ctx, refund, gwErr)
		if err != nil {
			return nil, false, err
		}
		return failed, false, nil
	}

	completed, err := s.markCompleted(ctx, refund, order, result)
	if err != nil {
		return nil, false, err
	}
	return completed, true, nil
}

// parkExhausted 可退余额已被其他退款用完，停止自动重试并等待人工处理
func (s *refundService) parkExhausted(ctx context.Context, refund *model.Refund, refundable int64) {
	reason := fmt.Sprintf("refundable balance exhausted: requested %d, remaining %d", refund.Amount, refundable)
	ok, err := s.repo.Transition(ctx, refund.ID, model.StatusFailed, map[string]interface{}{
		"next_retry_at":   nil,
		"failure_reason":  reason,
		"status_timeline": refund.WithEntry(model.StatusFailed, reason+"; manual decision required", s.now()),
	})
	if err != nil || !ok {
		logger.FromContext(ctx).Error("failed to stop retries for exhausted refund",
			zap.String("refund_no", refund.RefundNo), zap.Bool("matched", ok), zap.Error(err))
		return
	}
	logger.FromContext(ctx).Warn("automatic retries stopped, refundable balance exhausted",
		zap.String("refund_no", refund.RefundNo),
		zap.Int64("amount", refund.Amount),
		zap.Int64("refundable", refundable),
	)
}

func (s *refundService) markCompleted(ctx context.Context, refund *model.Refund, order *paymentModel.Order, result *strategy.RefundResult) (*model.Refund, error) {
	now := s.now()
	fields := map[string]interface{}{
		"status":          model.StatusCompleted,
		"completed_at":    now,
		"active_order_id": nil,
		"failure_reason":  nil,
		"next_retry_at":   nil,
		"status_timeline": refund.WithEntry(model.StatusCompleted, "gateway accepted refund", now),
	}
	if result != nil && result.GatewayRefundID != "" {
		fields["gateway_refund_id"] = result.GatewayRefundID
	}

	ok, err := s.repo.Transition(ctx, refund.ID, model.StatusProcessing, fields)
	if err != nil || !ok {
		// 网关已退款但本地状态未落库，需要人工核对
		logger.FromContext(ctx).Error("refund completed at gateway but not recorded",
			zap.String("refund_no", refund.RefundNo),
			zap.Bool("matched", ok),
			zap.Error(err),
		)
		if err == nil {
			err = errors.New("refund left PROCESSING unexpectedly")
		}
		return nil, errutil.Internal("failed to record completed refund", err)
	}
	metrics.GetGlobalCollector().RecordRefundTransition(model.StatusCompleted)

	refunded, err := s.repo.SumCompleted(ctx, order.ID)
	if err != nil {
		return nil, errutil.Internal("failed to sum completed refunds", err)
	}
	paymentStatus, err := s.orders.SettleRefund(ctx, order, refunded)
	if err != nil {
		logger.FromContext(ctx).Error("failed to update order payment status after refund",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	logger.FromContext(ctx).Info("refund completed",
		zap.String("refund_no", refund.RefundNo),
		zap.String("order_id", order.ID),
		zap.Int64("amount", refund.Amount),
		zap.String("payment_status", paymentStatus),
	)
	push.NotifyAccount(s.pusher, refund.UserID, "退款成功",
		fmt.Sprintf("退款单 %s 已完成，金额将原路退回。", refund.RefundNo),
		map[string]string{"refundNo": refund.RefundNo, "orderId": refund.OrderID})

	return s.repo.GetByID(ctx, refund.ID)
}

func (s *refundService) markFailed(ctx context.Context, refund *model.Refund, gwErr error) (*model.Refund, error) {
	now := s.now()
	retryCount := refund.RetryCount + 1
	permanent := strategy.IsPermanent(gwErr)

	var nextRetry *time.Time
	note := fmt.Sprintf("gateway failure (attempt %d): %s", retryCount, gwErr.Error())
	switch {
	case permanent:
		note += "; permanent, manual retry required"
	case retryCount < s.maxRetries:
		t := now.Add(s.retryDelay)
		nextRetry = &t
	default:
		note += "; retry budget exhausted, manual retry required"
	}

	ok, err := s.repo.Transition(ctx, refund.ID, model.StatusProcessing, map[string]interface{}{
		"status":          model.StatusFailed,
		"retry_count":     retryCount,
		"failure_reason":  gwErr.Error(),
		"next_retry_at":   nextRetry,
		"active_order_id": nil,
		"status_timeline": refund.WithEntry(model.StatusFailed, note, now),
	})
	if err != nil || !ok {
		if err == nil {
			err = errors.New("refund left PROCESSING unexpectedly")
		}
		return nil, errutil.Internal("failed to record failed refund", err)
	}
	metrics.GetGlobalCollector().RecordRefundTransition(model.StatusFailed)

	logger.FromContext(ctx).Warn("refund gateway call failed",
		zap.String("refund_no", refund.RefundNo),
		zap.String("channel", refund.Channel),
		zap.Int("retry_count", retryCount),
		zap.Bool("permanent", permanent),
		zap.Error(gwErr),
	)
	if nextRetry == nil {
		push.NotifyAccount(s.pusher, refund.UserID, "退款处理中",
			fmt.Sprintf("退款单 %s 暂未成功，客服将尽快处理。", refund.RefundNo), nil)
	}

	return s.repo.GetByID(ctx, refund.ID)
}

// SweepFailed 顺序重跑到期的失败退款
func (s *refundService) SweepFailed(ctx context.Context, now time.Time) (*SweepResult, error) {
	due, err := s.repo.FindDueForRetry(ctx, now.UTC(), s.maxRetries)
	if err != nil {
		return nil, errutil.Internal("failed to load refunds due for retry", err)
	}

	result := &SweepResult{}
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		result.Processed++
		_, ok, err := s.process(ctx, r.ID, modeSweep)
		switch {
		case err != nil:
			result.Failed++
			logger.FromContext(ctx).Warn("refund retry skipped", zap.String("refund_no", r.RefundNo), zap.Error(err))
		case ok:
			result.Succeeded++
		default:
			result.Failed++
		}
	}

	metrics.GetGlobalCollector().RecordSweep("refund_retry")
	if result.Processed > 0 {
		logger.FromContext(ctx).Info("refund retry sweep finished",
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func (s *refundService) Approve(ctx context.Context, refundID, adminID string) (*model.Refund, bool, error) {
	refund, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, false, err
	}
	if refund.Status != model.StatusPending {
		return nil, false, errutil.ValidationFailed("only pending refunds can be approved",
			errutil.WithDetail("status", refund.Status))
	}

	now := s.now()
	ok, err := s.repo.Transition(ctx, refund.ID, model.StatusPending, map[string]interface{}{
		"status":          model.StatusInitiated,
		"approved_by":     adminID,
		"approved_at":     now,
		"status_timeline": refund.WithEntry(model.StatusInitiated, "approved by "+adminID, now),
	})
	if err != nil {
		return nil, false, errutil.Internal("failed to approve refund", err)
	}
	if !ok {
		return nil, false, errutil.Conflict("refund status changed concurrently", errutil.WithDetail("refundNo", refund.RefundNo))
	}
	metrics.GetGlobalCollector().RecordRefundTransition(model.StatusInitiated)

	return s.Process(ctx, refund.ID)
}

// Cancel PROCESSING 期间网关调用未返回，不允许取消
func (s *refundService) Cancel(ctx context.Context, refundID, reason string) (*model.Refund, error) {
	refund, err := s.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}
	switch refund.Status {
	case model.StatusCompleted, model.StatusCancelled, model.StatusProcessing:
		return nil, errutil.ValidationFailed("refund cannot be cancelled in its current status",
			errutil.WithDetail("status", refund.Status))
	}

	now := s.now()
	note := "cancelled"
	if reason != "" {
		note += ": " + reason
	}
	ok, err := s.repo.Transition(ctx, refund.ID, refund.Status, map[string]interface{}{
		"status":          model.StatusCancelled,
		"cancelled_at":    now,
		"cancel_reason":   reason,
		"next_retry_at":   nil,
		"active_order_id": nil,
		"status_timeline": refund.WithEntry(model.StatusCancelled, note, now),
	})
	if err != nil {
		return nil, errutil.Internal("failed to cancel refund", err)
	}
	if !ok {
		return nil, errutil.Conflict("refund status changed concurrently", errutil.WithDetail("refundNo", refund.RefundNo))
	}
	metrics.GetGlobalCollector().RecordRefundTransition(model.StatusCancelled)
	logger.FromContext(ctx).Info("refund cancelled", zap.String("refund_no", refund.RefundNo), zap.String("reason", reason))

	return s.repo.GetByID(ctx, refund.ID)
}

// Retry 人工重试：重试次数清零后立即处理
func (s *refundService) Retry(ctx context.Context, refundID string) (*model.Refund, bool, error) {
	return s.process(ctx, refundID, modeManualRetry)
}

func (s *refundService) Get(ctx context.Context, id string) (*model.Refund, error) {
	refund, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errutil.NotFound("refund not found", errutil.WithDetail("refundId", id))
		}
		return nil, errutil.Internal("failed to load refund", err)
	}
	return refund, nil
}

func (s *refundService) GetByNo(ctx context.Context, refundNo string) (*model.Refund, error) {
	refund, err := s.repo.GetByNo(ctx, refundNo)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errutil.NotFound("refund not found", errutil.WithDetail("refundNo", refundNo))
		}
		return nil, errutil.Internal("failed to load refund", err)
	}
	return refund, nil
}

func (s *refundService) ListByOrder(ctx context.Context, orderID string) ([]model.Refund, error) {
	refunds, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errutil.Internal("failed to list refunds", err)
	}
	return refunds, nil
}

func (s *refundService) List(ctx context.Context, f repository.Filter, page utils.Pagination) (*utils.PageResult, error) {
	offset, limit := page.GetPageOffset()
	refunds, total, err := s.repo.List(ctx, f, offset, limit)
	if err != nil {
		return nil, errutil.Internal("failed to list refunds", err)
	}
	result := utils.NewPageResult(refunds, total, page)
	return &result, nil
}
