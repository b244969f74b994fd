package service

import (
	"context"
	"sync"
	"testing"
	"time"

	paymentModel "meal_voucher/internal/domain/payment/model"
	paymentRepo "meal_voucher/internal/domain/payment/repository"
	paymentService "meal_voucher/internal/domain/payment/service"
	"meal_voucher/internal/domain/payment/strategy"
	"meal_voucher/internal/domain/refund/model"
	"meal_voucher/internal/domain/refund/repository"
	voucherModel "meal_voucher/internal/domain/voucher/model"
	voucherRepo "meal_voucher/internal/domain/voucher/repository"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/cutoff"
	"meal_voucher/internal/pkg/lock"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/testutil"
	"meal_voucher/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Refund(ctx context.Context, channel string, req strategy.RefundRequest) (*strategy.RefundResult, error) {
	args := m.Called(ctx, channel, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*strategy.RefundResult), args.Error(1)
}

type fixture struct {
	svc      RefundService
	repo     repository.RefundRepository
	orders   paymentRepo.OrderRepository
	vouchers voucherRepo.VoucherRepository
	gateway  *MockGateway
	db       *gorm.DB
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &model.Refund{}, &paymentModel.Order{}, &voucherModel.Voucher{})

	policy, err := cutoff.NewPolicy("11:00", "21:00", "UTC")
	require.NoError(t, err)
	clock := func() time.Time { return testNow }

	f := &fixture{
		repo:     repository.NewRefundRepository(db),
		orders:   paymentRepo.NewOrderRepository(db),
		vouchers: voucherRepo.NewVoucherRepository(db),
		gateway:  new(MockGateway),
		db:       db,
	}
	vouchers := voucherService.NewVoucherService(f.vouchers, policy, voucherService.WithClock(clock))
	orders := paymentService.NewOrderService(f.orders)

	opts = append([]Option{WithClock(clock), WithRetryPolicy(3, time.Hour)}, opts...)
	f.svc = NewRefundService(db, f.repo, orders, vouchers, f.gateway, opts...)
	return f
}

func (f *fixture) seedOrder(t *testing.T, amount int64, voucherCount int) *paymentModel.Order {
	t.Helper()
	paymentID := "PAY-" + t.Name()
	order := &paymentModel.Order{
		OrderNo:       "ORD-" + t.Name(),
		UserID:        "user-1",
		KitchenID:     "kitchen-1",
		MenuType:      "MEAL",
		MealWindow:    "LUNCH",
		AmountPaid:    amount,
		PaymentStatus: paymentModel.PaymentStatusPaid,
		Channel:       paymentModel.ChannelAlipay,
		VoucherCount:  voucherCount,
	}
	if amount > 0 {
		order.PaymentID = &paymentID
	}
	require.NoError(t, f.orders.Create(context.Background(), order))

	if voucherCount > 0 {
		batch := make([]*voucherModel.Voucher, 0, voucherCount)
		redeemedAt := testNow.Add(-time.Hour)
		for i := 0; i < voucherCount; i++ {
			orderID := order.ID
			batch = append(batch, &voucherModel.Voucher{
				UserID:          "user-1",
				IssuedDate:      testNow.AddDate(0, 0, -5),
				ExpiryDate:      testNow.AddDate(0, 0, 20),
				Status:          voucherModel.StatusRedeemed,
				RedeemedOrderID: &orderID,
				RedeemedAt:      &redeemedAt,
			})
		}
		require.NoError(t, f.vouchers.CreateBatch(context.Background(), batch))
	}
	return order
}

func fullRefund(orderID string) InitiateParams {
	return InitiateParams{
		OrderID:     orderID,
		Reason:      voucherModel.ReasonOrderCancelled,
		RefundType:  model.TypeFull,
		InitiatedBy: "admin-1",
	}
}

func partialRefund(orderID string, amount int64) InitiateParams {
	p := fullRefund(orderID)
	p.RefundType = model.TypePartial
	p.Amount = amount
	return p
}

func gatewayOK(id string) *strategy.RefundResult {
	return &strategy.RefundResult{GatewayRefundID: id, Status: "SUCCESS"}
}

func TestInitiate_FullRefundRestoresVouchers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 2)

	result, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)
	require.NotNil(t, result.Refund)

	r := result.Refund
	assert.Equal(t, model.StatusInitiated, r.Status)
	assert.Equal(t, int64(10000), r.Amount)
	assert.Equal(t, "alipay", r.Channel)
	assert.Regexp(t, `^RF20260310090000[0-9a-f]{8}$`, r.RefundNo)
	assert.True(t, r.VouchersRestored)
	assert.Len(t, r.RestoredVoucherIDs, 2)
	require.Len(t, r.StatusTimeline, 2)
	assert.Equal(t, "restored 2 vouchers", r.StatusTimeline[1].Note)

	ids, err := f.vouchers.FindRedeemedIDsByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestInitiate_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	tests := []struct {
		name   string
		params InitiateParams
		kind   errutil.Kind
	}{
		{"missing order", InitiateParams{Reason: voucherModel.ReasonOther}, errutil.KindValidationFailed},
		{"bad reason", InitiateParams{OrderID: order.ID, Reason: "CHANGED_MIND"}, errutil.KindValidationFailed},
		{"bad type", InitiateParams{OrderID: order.ID, Reason: voucherModel.ReasonOther, RefundType: "HALF"}, errutil.KindValidationFailed},
		{"partial without amount", partialRefund(order.ID, 0), errutil.KindValidationFailed},
		{"partial above paid", partialRefund(order.ID, 10001), errutil.KindValidationFailed},
		{"unknown order", fullRefund("missing"), errutil.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Initiate(ctx, tt.params)
			require.Error(t, err)
			assert.True(t, errutil.IsKind(err, tt.kind), "got %v", err)
		})
	}
}

func TestInitiate_OneActiveRefundPerOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Initiate(ctx, partialRefund(order.ID, 1000))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errutil.IsKind(err, errutil.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)

	refunds, err := f.svc.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 1)
}

func TestInitiate_LeaseHeldElsewhere(t *testing.T) {
	locker := lock.NewLocalLocker()
	f := setup(t, WithLocker(locker, time.Minute))
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	release, err := locker.Acquire(ctx, "refund:order:"+order.ID, time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, fullRefund(order.ID))
	assert.True(t, errutil.IsKind(err, errutil.KindConflict))

	release()
	result, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)
	assert.Equal(t, model.StatusInitiated, result.Refund.Status)
}

func TestInitiate_ConflictCarriesActiveRefund(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	first, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, fullRefund(order.ID))
	be, ok := errutil.As(err)
	require.True(t, ok)
	assert.Equal(t, errutil.KindConflict, be.Kind)
	assert.Contains(t, be.Details, errutil.Detail{Field: "refundNo", Message: first.Refund.RefundNo})
	assert.Contains(t, be.Details, errutil.Detail{Field: "status", Message: model.StatusInitiated})
}

func TestInitiate_VoucherOnlyOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 0, 3)

	result, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)
	assert.Nil(t, result.Refund, "no monetary refund record for voucher-only orders")
	assert.True(t, result.VouchersRestored)
	assert.Len(t, result.RestoredVoucherIDs, 3)

	refunds, err := f.svc.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, refunds)

	_, err = f.svc.Initiate(ctx, fullRefund(order.ID))
	assert.True(t, errutil.IsKind(err, errutil.KindConflict), "vouchers cannot be restored twice")

}

func TestInitiate_NothingToRefund(t *testing.T) {
	f := setup(t)
	order := f.seedOrder(t, 0, 0)

	_, err := f.svc.Initiate(context.Background(), fullRefund(order.ID))
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))
}

func TestProcess_Success(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	initiated, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)

	f.gateway.On("Refund", mock.Anything, "alipay", mock.MatchedBy(func(req strategy.RefundRequest) bool {
		return req.Amount == 10000 && req.TotalAmount == 10000 && req.PaymentID == *order.PaymentID
	})).Return(gatewayOK("ALI-1"), nil).Once()

	refund, ok, err := f.svc.Process(ctx, initiated.Refund.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StatusCompleted, refund.Status)
	require.NotNil(t, refund.GatewayRefundID)
	assert.Equal(t, "ALI-1", *refund.GatewayRefundID)
	require.NotNil(t, refund.CompletedAt)
	assert.Nil(t, refund.ActiveOrderID)

	statuses := make([]string, 0, len(refund.StatusTimeline))
	for _, e := range refund.StatusTimeline {
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []string{model.StatusInitiated, model.StatusProcessing, model.StatusCompleted}, statuses)

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentModel.PaymentStatusRefunded, stored.PaymentStatus)

	_, _, err = f.svc.Process(ctx, refund.ID)
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed), "completed refunds are terminal")

	f.gateway.AssertExpectations(t)
}

func TestPartialRefunds_NeverExceedAmountPaid(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(gatewayOK("ALI"), nil)

	first, err := f.svc.Initiate(ctx, partialRefund(order.ID, 4000))
	require.NoError(t, err)
	_, ok, err := f.svc.Process(ctx, first.Refund.ID)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentModel.PaymentStatusPartiallyRefunded, stored.PaymentStatus)

	_, err = f.svc.Initiate(ctx, partialRefund(order.ID, 7000))
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	second, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(6000), second.Refund.Amount, "full refund takes the remaining balance")
	_, ok, err = f.svc.Process(ctx, second.Refund.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Initiate(ctx, partialRefund(order.ID, 1))
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed), "fully refunded orders accept no more refunds")

	stored, err = f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentModel.PaymentStatusRefunded, stored.PaymentStatus)
}

func TestProcess_StaleFailedRefundCannotOverdraw(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	stale, err := f.svc.Initiate(ctx, partialRefund(order.ID, 6000))
	require.NoError(t, err)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(nil, &strategy.GatewayError{Channel: "alipay", Code: "SYSTEM_ERROR"}).Once()
	_, ok, err := f.svc.Process(ctx, stale.Refund.ID)
	require.NoError(t, err)
	require.False(t, ok)

	fresh, err := f.svc.Initiate(ctx, partialRefund(order.ID, 6000))
	require.NoError(t, err)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(gatewayOK("ALI-2"), nil).Once()
	_, ok, err = f.svc.Process(ctx, fresh.Refund.ID)
	require.NoError(t, err)
	require.True(t, ok)

	before, err := f.svc.Get(ctx, stale.Refund.ID)
	require.NoError(t, err)

	_, _, err = f.svc.Retry(ctx, stale.Refund.ID)
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	// 被拒绝的人工重试不修改退款单
	refund, err := f.svc.Get(ctx, stale.Refund.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, refund.Status)
	assert.Equal(t, before.RetryCount, refund.RetryCount)
	require.NotNil(t, refund.NextRetryAt)
	assert.True(t, refund.NextRetryAt.Equal(*before.NextRetryAt))
	assert.Len(t, refund.StatusTimeline, len(before.StatusTimeline))
	f.gateway.AssertNumberOfCalls(t, "Refund", 2)
}

func TestSweepFailed_StopsWhenBalanceExhausted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	stale, err := f.svc.Initiate(ctx, partialRefund(order.ID, 6000))
	require.NoError(t, err)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(nil, &strategy.GatewayError{Channel: "alipay", Code: "SYSTEM_ERROR"}).Once()
	_, ok, err := f.svc.Process(ctx, stale.Refund.ID)
	require.NoError(t, err)
	require.False(t, ok)

	fresh, err := f.svc.Initiate(ctx, partialRefund(order.ID, 6000))
	require.NoError(t, err)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(gatewayOK("ALI-2"), nil).Once()
	_, ok, err = f.svc.Process(ctx, fresh.Refund.ID)
	require.NoError(t, err)
	require.True(t, ok)

	before, err := f.svc.Get(ctx, stale.Refund.ID)
	require.NoError(t, err)

	later := testNow.Add(2 * time.Hour)
	swept, err := f.svc.SweepFailed(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Processed)
	assert.Equal(t, 1, swept.Failed)

	refund, err := f.svc.Get(ctx, stale.Refund.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, refund.Status)
	assert.Nil(t, refund.NextRetryAt)
	require.NotNil(t, refund.FailureReason)
	assert.Contains(t, *refund.FailureReason, "refundable balance exhausted")
	require.Len(t, refund.StatusTimeline, len(before.StatusTimeline)+1)
	assert.Contains(t, refund.StatusTimeline[len(refund.StatusTimeline)-1].Note, "manual decision required")

	swept, err = f.svc.SweepFailed(ctx, later.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, swept.Processed)
	f.gateway.AssertNumberOfCalls(t, "Refund", 2)
}

func TestFailedRefund_RetryBudget(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)
	transient := &strategy.GatewayError{Channel: "alipay", Code: "SYSTEM_ERROR", Message: "busy"}
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(nil, transient).Times(3)

	initiated, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)

	refund, ok, err := f.svc.Process(ctx, initiated.Refund.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, model.StatusFailed, refund.Status)
	assert.Equal(t, 1, refund.RetryCount)
	require.NotNil(t, refund.NextRetryAt)
	assert.True(t, refund.NextRetryAt.Equal(testNow.Add(time.Hour)))
	assert.Nil(t, refund.ActiveOrderID, "failed refunds release the order")

	// 未到重试时间
	swept, err := f.svc.SweepFailed(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, swept.Processed)

	later := testNow.Add(2 * time.Hour)
	for i := 0; i < 2; i++ {
		swept, err = f.svc.SweepFailed(ctx, later)
		require.NoError(t, err)
		assert.Equal(t, 1, swept.Processed)
		assert.Equal(t, 1, swept.Failed)
	}

	refund, err = f.svc.Get(ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, refund.RetryCount)
	assert.Nil(t, refund.NextRetryAt, "no automatic retry after the budget is spent")

	swept, err = f.svc.SweepFailed(ctx, later.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, swept.Processed)

	// 人工重试
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(gatewayOK("ALI-R"), nil).Once()
	refund, ok, err = f.svc.Retry(ctx, refund.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StatusCompleted, refund.Status)
	f.gateway.AssertNumberOfCalls(t, "Refund", 4)
}

func TestFailedRefund_PermanentErrorNotScheduled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).
		Return(nil, &strategy.GatewayError{Channel: "alipay", Code: "ACQ.TRADE_NOT_EXIST", Permanent: true}).Once()

	initiated, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)

	refund, ok, err := f.svc.Process(ctx, initiated.Refund.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, refund.RetryCount)
	assert.Nil(t, refund.NextRetryAt)
	require.NotNil(t, refund.FailureReason)
	assert.Contains(t, *refund.FailureReason, "ACQ.TRADE_NOT_EXIST")
}

func TestApprove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)
	f.gateway.On("Refund", mock.Anything, "alipay", mock.Anything).Return(gatewayOK("ALI-A"), nil).Once()

	params := fullRefund(order.ID)
	params.RequireApproval = true
	initiated, err := f.svc.Initiate(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, initiated.Refund.Status)

	refund, ok, err := f.svc.Approve(ctx, initiated.Refund.ID, "admin-9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StatusCompleted, refund.Status)
	require.NotNil(t, refund.ApprovedBy)
	assert.Equal(t, "admin-9", *refund.ApprovedBy)
	require.NotNil(t, refund.ApprovedAt)

	_, _, err = f.svc.Approve(ctx, refund.ID, "admin-9")
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))
}

func TestCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	initiated, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)

	refund, err := f.svc.Cancel(ctx, initiated.Refund.ID, "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, refund.Status)
	require.NotNil(t, refund.CancelReason)
	assert.Equal(t, "duplicate request", *refund.CancelReason)
	assert.Nil(t, refund.ActiveOrderID)

	_, err = f.svc.Cancel(ctx, refund.ID, "again")
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	_, _, err = f.svc.Process(ctx, refund.ID)
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	// 取消后订单可以重新发起退款
	_, err = f.svc.Initiate(ctx, fullRefund(order.ID))
	assert.NoError(t, err)
}

func TestQueries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.seedOrder(t, 10000, 0)

	initiated, err := f.svc.Initiate(ctx, fullRefund(order.ID))
	require.NoError(t, err)

	byNo, err := f.svc.GetByNo(ctx, initiated.Refund.RefundNo)
	require.NoError(t, err)
	assert.Equal(t, initiated.Refund.ID, byNo.ID)

	_, err = f.svc.Get(ctx, "missing")
	assert.True(t, errutil.IsKind(err, errutil.KindNotFound))
	_, err = f.svc.GetByNo(ctx, "RF-missing")
	assert.True(t, errutil.IsKind(err, errutil.KindNotFound))

	page, err := f.svc.List(ctx, repository.Filter{Status: model.StatusInitiated}, utils.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = f.svc.List(ctx, repository.Filter{Status: model.StatusCompleted}, utils.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
}
