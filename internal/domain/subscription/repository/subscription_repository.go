package repository

import (
	"context"
	"time"

	"meal_voucher/internal/domain/subscription/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository
	GetPlan(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	ListActivePlans(ctx context.Context, now time.Time) ([]model.SubscriptionPlan, error)
	Create(ctx context.Context, sub *model.Subscription) error
	GetByID(ctx context.Context, id string) (*model.Subscription, error)
	// GetForUpdate 事务内加行锁读取
	GetForUpdate(ctx context.Context, id string) (*model.Subscription, error)
	Update(ctx context.Context, id string, fields map[string]interface{}) error
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Subscription, int64, error)
	ExpireEndedBefore(ctx context.Context, now time.Time) (int64, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &subscriptionRepository{db: tx}
}

func (r *subscriptionRepository) GetPlan(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	var plan model.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *subscriptionRepository) ListActivePlans(ctx context.Context, now time.Time) ([]model.SubscriptionPlan, error) {
	var plans []model.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND valid_from <= ?", true, now).
		Where("valid_until IS NULL OR valid_until >= ?", now).
		Order("price ASC").
		Find(&plans).Error
	return plans, err
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetForUpdate(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&model.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

func (r *subscriptionRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Subscription, int64, error) {
	var subs []model.Subscription
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Subscription{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("purchase_date DESC").Offset(offset).Limit(limit).Find(&subs).Error; err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// ExpireEndedBefore ACTIVE 且 end_date < now 的订阅改为 EXPIRED
func (r *subscriptionRepository) ExpireEndedBefore(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("status = ? AND end_date < ?", model.StatusActive, now).
		Update("status", model.StatusExpired)
	return result.RowsAffected, result.Error
}
