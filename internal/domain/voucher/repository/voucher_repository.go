package repository

import (
	"context"
	"errors"
	"time"

	"meal_voucher/internal/domain/voucher/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientVouchers 可用券不足，整批核销已回滚
var ErrInsufficientVouchers = errors.New("insufficient usable vouchers")

// ClaimParams 核销参数
type ClaimParams struct {
	UserID     string
	Count      int
	OrderID    string
	KitchenID  string
	MealWindow string
	Now        time.Time
}

// StatusCount 按状态统计
type StatusCount struct {
	Status string
	Count  int64
}

type VoucherRepository interface {
	// WithTx 返回绑定到事务的仓储
	WithTx(tx *gorm.DB) VoucherRepository
	CreateBatch(ctx context.Context, vouchers []*model.Voucher) error
	GetByID(ctx context.Context, id string) (*model.Voucher, error)
	ClaimUsable(ctx context.Context, p ClaimParams) ([]string, error)
	Restore(ctx context.Context, ids []string, fromStatuses []string, reason string, now time.Time) ([]string, error)
	FindRedeemedIDsByOrder(ctx context.Context, orderID string) ([]string, error)
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
	CancelBySubscription(ctx context.Context, subscriptionID string, now time.Time) (int64, error)
	CountUsable(ctx context.Context, userID string, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, userID string) ([]StatusCount, error)
	CountBySubscription(ctx context.Context, subscriptionID, status string) (int64, error)
	NearestExpiry(ctx context.Context, userID string, now time.Time) (*time.Time, error)
	List(ctx context.Context, userID, status string, offset, limit int) ([]model.Voucher, int64, error)
}

type voucherRepository struct {
	db *gorm.DB
}

func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

func (r *voucherRepository) WithTx(tx *gorm.DB) VoucherRepository {
	if tx == nil {
		return r
	}
	return &voucherRepository{db: tx}
}

func (r *voucherRepository) CreateBatch(ctx context.Context, vouchers []*model.Voucher) error {
	if len(vouchers) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(vouchers, 200).Error
}

func (r *voucherRepository) GetByID(ctx context.Context, id string) (*model.Voucher, error) {
	var v model.Voucher
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ClaimUsable 在一个事务内锁定并核销 Count 张最早到期的可用券
// 锁定行数或更新行数不足 Count 时整体回滚，返回 ErrInsufficientVouchers
// SKIP LOCKED 会跳过其他未提交事务锁住的券；若那个事务随后回滚，这次的
// ErrInsufficientVouchers 只是争用造成的，调用方重新核销即可
func (r *voucherRepository) ClaimUsable(ctx context.Context, p ClaimParams) ([]string, error) {
	var claimed []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 按到期时间升序锁定候选券，已被其他事务锁住的行直接跳过
		var candidates []model.Voucher
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id").
			Where("user_id = ? AND status IN ? AND expiry_date > ?", p.UserID, model.UsableStatuses, p.Now).
			Order("expiry_date ASC, issued_date ASC, id ASC").
			Limit(p.Count).
			Find(&candidates).Error; err != nil {
			return err
		}
		if len(candidates) < p.Count {
			return ErrInsufficientVouchers
		}

		ids := make([]string, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ID)
		}

		// 2. 条件更新：状态仍可用才改为 REDEEMED
		result := tx.Model(&model.Voucher{}).
			Where("id IN ? AND status IN ? AND expiry_date > ?", ids, model.UsableStatuses, p.Now).
			Updates(map[string]interface{}{
				"status":               model.StatusRedeemed,
				"redeemed_order_id":    p.OrderID,
				"redeemed_kitchen_id":  p.KitchenID,
				"redeemed_meal_window": p.MealWindow,
				"redeemed_at":          p.Now,
				"restored_at":          nil,
				"restoration_reason":   nil,
			})
		if result.Error != nil {
			return result.Error
		}

		// 3. 校验实际更新数量
		if result.RowsAffected != int64(p.Count) {
			return ErrInsufficientVouchers
		}

		claimed = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Restore 将处于 fromStatuses 的券退回为 RESTORED，清空核销信息，返回实际退回的 ID
func (r *voucherRepository) Restore(ctx context.Context, ids []string, fromStatuses []string, reason string, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var restored []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []model.Voucher
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id IN ? AND status IN ?", ids, fromStatuses).
			Order("id ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		lockedIDs := make([]string, 0, len(rows))
		for _, row := range rows {
			lockedIDs = append(lockedIDs, row.ID)
		}

		result := tx.Model(&model.Voucher{}).
			Where("id IN ? AND status IN ?", lockedIDs, fromStatuses).
			Updates(map[string]interface{}{
				"status":               model.StatusRestored,
				"redeemed_order_id":    nil,
				"redeemed_kitchen_id":  nil,
				"redeemed_meal_window": nil,
				"redeemed_at":          nil,
				"expired_at":           nil,
				"restored_at":          now,
				"restoration_reason":   reason,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != int64(len(lockedIDs)) {
			return errors.New("voucher restore affected an unexpected number of rows")
		}

		restored = lockedIDs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

func (r *voucherRepository) FindRedeemedIDsByOrder(ctx context.Context, orderID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("redeemed_order_id = ? AND status = ?", orderID, model.StatusRedeemed).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ExpireBefore 过期清理：可用状态且 expiry_date < now 的券改为 EXPIRED
func (r *voucherRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("status IN ? AND expiry_date < ?", model.UsableStatuses, now).
		Updates(map[string]interface{}{
			"status":     model.StatusExpired,
			"expired_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *voucherRepository) CancelBySubscription(ctx context.Context, subscriptionID string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("subscription_id = ? AND status IN ?", subscriptionID, model.UsableStatuses).
		Updates(map[string]interface{}{
			"status":       model.StatusCancelled,
			"cancelled_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *voucherRepository) CountUsable(ctx context.Context, userID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("user_id = ? AND status IN ? AND expiry_date > ?", userID, model.UsableStatuses, now).
		Count(&count).Error
	return count, err
}

func (r *voucherRepository) CountByStatus(ctx context.Context, userID string) ([]StatusCount, error) {
	var rows []StatusCount
	err := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	return rows, err
}

func (r *voucherRepository) CountBySubscription(ctx context.Context, subscriptionID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Voucher{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, status).
		Count(&count).Error
	return count, err
}

func (r *voucherRepository) NearestExpiry(ctx context.Context, userID string, now time.Time) (*time.Time, error) {
	var v model.Voucher
	err := r.db.WithContext(ctx).
		Select("expiry_date").
		Where("user_id = ? AND status IN ? AND expiry_date > ?", userID, model.UsableStatuses, now).
		Order("expiry_date ASC").
		Limit(1).
		Find(&v).Error
	if err != nil {
		return nil, err
	}
	if v.ExpiryDate.IsZero() {
		return nil, nil
	}
	return &v.ExpiryDate, nil
}

func (r *voucherRepository) List(ctx context.Context, userID, status string, offset, limit int) ([]model.Voucher, int64, error) {
	var vouchers []model.Voucher
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Voucher{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("expiry_date ASC").Offset(offset).Limit(limit).Find(&vouchers).Error; err != nil {
		return nil, 0, err
	}
	return vouchers, total, nil
}
