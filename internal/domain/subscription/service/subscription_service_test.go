package service

import (
	"context"
	"testing"
	"time"

	"meal_voucher/internal/domain/subscription/model"
	"meal_voucher/internal/domain/subscription/repository"
	voucherModel "meal_voucher/internal/domain/voucher/model"
	voucherRepo "meal_voucher/internal/domain/voucher/repository"
	voucherService "meal_voucher/internal/domain/voucher/service"
	"meal_voucher/internal/pkg/cutoff"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	svc      SubscriptionService
	vouchers voucherService.VoucherService
	vRepo    voucherRepo.VoucherRepository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t, &model.SubscriptionPlan{}, &model.Subscription{}, &voucherModel.Voucher{})

	policy, err := cutoff.NewPolicy("11:00", "21:00", "UTC")
	require.NoError(t, err)
	clock := func() time.Time { return testNow }

	vRepo := voucherRepo.NewVoucherRepository(db)
	vouchers := voucherService.NewVoucherService(vRepo, policy, voucherService.WithClock(clock))
	svc := NewSubscriptionService(db, repository.NewSubscriptionRepository(db), vouchers, WithClock(clock))
	return &fixture{db: db, svc: svc, vouchers: vouchers, vRepo: vRepo}
}

func paid(v int64) *int64 { return &v }

func (f *fixture) plan(t *testing.T, total, validityDays int, mutate ...func(*model.SubscriptionPlan)) *model.SubscriptionPlan {
	t.Helper()
	p := &model.SubscriptionPlan{
		Name:                "Monthly",
		DurationDays:        30,
		VouchersPerDay:      1,
		TotalVouchers:       total,
		Price:               300000,
		VoucherValidityDays: validityDays,
		IsActive:            true,
		ValidFrom:           testNow.AddDate(0, -1, 0),
	}
	for _, m := range mutate {
		m(p)
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func TestPurchase(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plan := f.plan(t, 20, 45)

	result, err := f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: plan.ID, PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, 20, result.VouchersIssued)

	sub := result.Subscription
	assert.Equal(t, model.StatusActive, sub.Status)
	assert.Equal(t, plan.Price, sub.AmountPaid)
	assert.True(t, sub.EndDate.Equal(testNow.AddDate(0, 0, 30)))
	assert.True(t, sub.VoucherExpiryDate.Equal(testNow.AddDate(0, 0, 45)))

	usable, err := f.vRepo.CountUsable(ctx, "user-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(20), usable)
}

func TestPurchase_ValidityFallsBackToDuration(t *testing.T) {
	f := setup(t)
	plan := f.plan(t, 10, 0)

	result, err := f.svc.Purchase(context.Background(), PurchaseParams{UserID: "user-1", PlanID: plan.ID, AmountPaid: paid(250000)})
	require.NoError(t, err)
	assert.True(t, result.Subscription.VoucherExpiryDate.Equal(testNow.AddDate(0, 0, 30)))
	assert.Equal(t, int64(250000), result.Subscription.AmountPaid)
}

func TestPurchase_ComplimentaryIsNotRefunded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plan := f.plan(t, 10, 30)

	purchased, err := f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: plan.ID, AmountPaid: paid(0)})
	require.NoError(t, err)
	assert.Equal(t, int64(0), purchased.Subscription.AmountPaid)

	result, err := f.svc.Cancel(ctx, purchased.Subscription.ID, "not needed", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.RefundAmount)
	assert.Equal(t, int64(10), result.CancelledVouchers)
}

func TestPurchase_PlanChecks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: "missing"})
	assert.True(t, errutil.IsKind(err, errutil.KindNotFound))

	_, err = f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: "missing", AmountPaid: paid(-1)})
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	inactive := f.plan(t, 10, 0, func(p *model.SubscriptionPlan) { p.Name = "Old" })
	require.NoError(t, f.db.Model(inactive).Update("is_active", false).Error)
	_, err = f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: inactive.ID})
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	ended := testNow.AddDate(0, 0, -1)
	expired := f.plan(t, 10, 0, func(p *model.SubscriptionPlan) { p.ValidUntil = &ended })
	_, err = f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: expired.ID})
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))

	future := f.plan(t, 10, 0, func(p *model.SubscriptionPlan) { p.ValidFrom = testNow.AddDate(0, 0, 1) })
	_, err = f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: future.ID})
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))
}

func TestCancel_LowUsageRefund(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plan := f.plan(t, 20, 30)

	purchased, err := f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: plan.ID, AmountPaid: paid(300000)})
	require.NoError(t, err)

	_, err = f.vouchers.Redeem(ctx, voucherService.RedeemParams{
		UserID: "user-1", Count: 3, MealWindow: "LUNCH", OrderID: "order-1", KitchenID: "k-1",
	})
	require.NoError(t, err)

	result, err := f.svc.Cancel(ctx, purchased.Subscription.ID, "moving away", "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, result.UsagePercent, 0.001)
	assert.True(t, result.RefundEligible)
	assert.Equal(t, int64(210000), result.RefundAmount)
	assert.Equal(t, int64(17), result.CancelledVouchers)

	stored, err := f.svc.Get(ctx, purchased.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	require.NotNil(t, stored.RefundAmount)
	assert.Equal(t, int64(210000), *stored.RefundAmount)
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, "user-1", *stored.CancelledBy)

	usable, err := f.vRepo.CountUsable(ctx, "user-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usable)

	// 已取消的订阅不能再次取消
	_, err = f.svc.Cancel(ctx, purchased.Subscription.ID, "again", "user-1")
	assert.True(t, errutil.IsKind(err, errutil.KindValidationFailed))
}

func TestCancel_HighUsageNotEligible(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plan := f.plan(t, 10, 30)

	purchased, err := f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: plan.ID})
	require.NoError(t, err)
	_, err = f.vouchers.Redeem(ctx, voucherService.RedeemParams{
		UserID: "user-1", Count: 3, MealWindow: "DINNER", OrderID: "order-1", KitchenID: "k-1",
	})
	require.NoError(t, err)

	result, err := f.svc.Cancel(ctx, purchased.Subscription.ID, "", "admin-1")
	require.NoError(t, err)
	assert.False(t, result.RefundEligible)
	assert.Equal(t, int64(0), result.RefundAmount)
	assert.Equal(t, int64(7), result.CancelledVouchers)
}

func TestCancel_NotFound(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Cancel(context.Background(), "missing", "", "user-1")
	assert.True(t, errutil.IsKind(err, errutil.KindNotFound))
}

func TestCalculateRefund(t *testing.T) {
	tests := []struct {
		name     string
		redeemed int64
		total    int64
		paid     int64
		eligible bool
		amount   int64
	}{
		{"unused", 0, 20, 300000, true, 300000},
		{"fifteen percent", 3, 20, 300000, true, 210000},
		{"exactly at limit", 5, 20, 300000, true, 150000},
		{"just over limit", 6, 20, 300000, false, 0},
		{"a third used", 1, 3, 100, false, 0},
		{"rounded to nearest unit", 1, 8, 99, true, 74},
		{"no vouchers", 0, 0, 1000, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, eligible, amount := CalculateRefund(tt.redeemed, tt.total, tt.paid)
			assert.Equal(t, tt.eligible, eligible)
			assert.Equal(t, tt.amount, amount)
		})
	}
}

func TestSweepExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plan := f.plan(t, 5, 0)

	purchased, err := f.svc.Purchase(ctx, PurchaseParams{UserID: "user-1", PlanID: plan.ID})
	require.NoError(t, err)

	count, err := f.svc.SweepExpired(ctx, testNow.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = f.svc.SweepExpired(ctx, testNow.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	sub, err := f.svc.Get(ctx, purchased.Subscription.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, sub.Status)

	count, err = f.svc.SweepExpired(ctx, testNow.AddDate(0, 0, 31))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
