package model

import (
	"time"

	baseModel "meal_voucher/pkg/model"
)

// Voucher 餐券，一张券对应一次正餐
type Voucher struct {
	baseModel.BaseModel
	UserID         string    `gorm:"size:36;not null;index:idx_vouchers_user_status_expiry,priority:1" json:"userId"`
	SubscriptionID *string   `gorm:"size:36;index" json:"subscriptionId,omitempty"`
	IssuedDate     time.Time `gorm:"not null" json:"issuedDate"`
	ExpiryDate     time.Time `gorm:"not null;index:idx_vouchers_user_status_expiry,priority:3" json:"expiryDate"`
	Status         string    `gorm:"size:16;not null;default:'AVAILABLE';index:idx_vouchers_user_status_expiry,priority:2" json:"status"`

	// 核销信息，仅 REDEEMED 时存在
	RedeemedOrderID    *string    `gorm:"size:64;index" json:"redeemedOrderId,omitempty"`
	RedeemedKitchenID  *string    `gorm:"size:64" json:"redeemedKitchenId,omitempty"`
	RedeemedMealWindow *string    `gorm:"size:16" json:"redeemedMealWindow,omitempty"`
	RedeemedAt         *time.Time `json:"redeemedAt,omitempty"`

	// 退回信息，仅 RESTORED 时存在
	RestoredAt        *time.Time `json:"restoredAt,omitempty"`
	RestorationReason *string    `gorm:"size:32" json:"restorationReason,omitempty"`

	ExpiredAt   *time.Time `json:"expiredAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

func (Voucher) TableName() string {
	return "vouchers"
}

// IsUsable 状态可用且未过期 (不依赖过期任务是否已执行)
func (v *Voucher) IsUsable(now time.Time) bool {
	return (v.Status == StatusAvailable || v.Status == StatusRestored) && v.ExpiryDate.After(now)
}

const (
	StatusAvailable = "AVAILABLE"
	StatusRedeemed  = "REDEEMED"
	StatusExpired   = "EXPIRED"
	StatusRestored  = "RESTORED"
	StatusCancelled = "CANCELLED"

	ReasonOrderCancelled = "ORDER_CANCELLED"
	ReasonOrderRejected  = "ORDER_REJECTED"
	ReasonAdminAction    = "ADMIN_ACTION"
	ReasonOther          = "OTHER"

	// MenuTypeMeal 只有正餐订单可以用券
	MenuTypeMeal = "MEAL"
)

// UsableStatuses 可核销的状态
var UsableStatuses = []string{StatusAvailable, StatusRestored}

// IsValidRestorationReason 退回原因是否合法
func IsValidRestorationReason(reason string) bool {
	switch reason {
	case ReasonOrderCancelled, ReasonOrderRejected, ReasonAdminAction, ReasonOther:
		return true
	}
	return false
}
