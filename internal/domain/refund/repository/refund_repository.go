package repository

import (
	"context"
	"time"

	"meal_voucher/internal/domain/refund/model"

	"gorm.io/gorm"
)

// Filter 管理端列表筛选
type Filter struct {
	Status  string
	OrderID string
	UserID  string
}

type RefundRepository interface {
	WithTx(tx *gorm.DB) RefundRepository
	Create(ctx context.Context, refund *model.Refund) error
	GetByID(ctx context.Context, id string) (*model.Refund, error)
	GetByNo(ctx context.Context, refundNo string) (*model.Refund, error)
	FindActiveByOrder(ctx context.Context, orderID string) (*model.Refund, error)
	SumCompleted(ctx context.Context, orderID string) (int64, error)
	ListByOrder(ctx context.Context, orderID string) ([]model.Refund, error)
	List(ctx context.Context, f Filter, offset, limit int) ([]model.Refund, int64, error)
	// Transition 仅当当前状态为 from 时更新，返回是否命中
	Transition(ctx context.Context, id, from string, fields map[string]interface{}) (bool, error)
	FindDueForRetry(ctx context.Context, now time.Time, maxRetries int) ([]model.Refund, error)
}

type refundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

func (r *refundRepository) WithTx(tx *gorm.DB) RefundRepository {
	if tx == nil {
		return r
	}
	return &refundRepository{db: tx}
}

func (r *refundRepository) Create(ctx context.Context, refund *model.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *refundRepository) GetByID(ctx context.Context, id string) (*model.Refund, error) {
	var refund model.Refund
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) GetByNo(ctx context.Context, refundNo string) (*model.Refund, error) {
	var refund model.Refund
	if err := r.db.WithContext(ctx).Where("refund_no = ?", refundNo).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) FindActiveByOrder(ctx context.Context, orderID string) (*model.Refund, error) {
	var refund model.Refund
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status IN ?", orderID, model.ActiveStatuses).
		Order("created_at DESC").
		First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *refundRepository) SumCompleted(ctx context.Context, orderID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND status = ?", orderID, model.StatusCompleted).
		Scan(&total).Error
	return total, err
}

func (r *refundRepository) ListByOrder(ctx context.Context, orderID string) ([]model.Refund, error) {
	var refunds []model.Refund
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&refunds).Error
	return refunds, err
}

func (r *refundRepository) List(ctx context.Context, f Filter, offset, limit int) ([]model.Refund, int64, error) {
	var refunds []model.Refund
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Refund{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.OrderID != "" {
		query = query.Where("order_id = ?", f.OrderID)
	}
	if f.UserID != "" {
		query = query.Where("user_id = ?", f.UserID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

func (r *refundRepository) Transition(ctx context.Context, id, from string, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Refund{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindDueForRetry FAILED 且重试次数未用完、next_retry_at 已到期
func (r *refundRepository) FindDueForRetry(ctx context.Context, now time.Time, maxRetries int) ([]model.Refund, error) {
	var refunds []model.Refund
	err := r.db.WithContext(ctx).
		Where("status = ? AND retry_count < ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			model.StatusFailed, maxRetries, now).
		Order("next_retry_at ASC").
		Find(&refunds).Error
	return refunds, err
}
