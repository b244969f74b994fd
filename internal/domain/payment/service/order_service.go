package service

import (
	"context"

	"meal_voucher/internal/domain/payment/model"
	"meal_voucher/internal/domain/payment/repository"
	"meal_voucher/pkg/database"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/logger"

	"go.uber.org/zap"
)

type OrderService interface {
	Get(ctx context.Context, id string) (*model.Order, error)
	// SettleRefund 根据累计已退金额更新订单支付状态
	SettleRefund(ctx context.Context, order *model.Order, refundedTotal int64) (string, error)
}

type orderService struct {
	repo repository.OrderRepository
}

func NewOrderService(repo repository.OrderRepository) OrderService {
	return &orderService{repo: repo}
}

func (s *orderService) Get(ctx context.Context, id string) (*model.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errutil.NotFound("order not found", errutil.WithDetail("orderId", id))
		}
		return nil, errutil.Internal("failed to load order", err)
	}
	return order, nil
}

func (s *orderService) SettleRefund(ctx context.Context, order *model.Order, refundedTotal int64) (string, error) {
	status := RefundedStatus(order.AmountPaid, refundedTotal)
	if err := s.repo.UpdatePaymentStatus(ctx, order.ID, status); err != nil {
		return "", errutil.Internal("failed to update order payment status", err)
	}

	logger.Log.Info("order payment status updated",
		zap.String("order_id", order.ID),
		zap.String("payment_status", status),
		zap.Int64("refunded_total", refundedTotal),
	)
	return status, nil
}

// RefundedStatus 累计已退达到实付金额为 REFUNDED，否则 PARTIALLY_REFUNDED
func RefundedStatus(amountPaid, refundedTotal int64) string {
	if refundedTotal >= amountPaid {
		return model.PaymentStatusRefunded
	}
	return model.PaymentStatusPartiallyRefunded
}
