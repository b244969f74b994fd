package model

import (
	"time"

	baseModel "meal_voucher/pkg/model"
)

// SubscriptionPlan 订阅套餐 (只读目录)
type SubscriptionPlan struct {
	baseModel.BaseModel
	Name                string     `gorm:"size:100;not null" json:"name"`
	Description         string     `gorm:"size:500" json:"description"`
	DurationDays        int        `gorm:"not null" json:"durationDays"`
	VouchersPerDay      int        `gorm:"not null;default:1" json:"vouchersPerDay"`
	TotalVouchers       int        `gorm:"not null" json:"totalVouchers"`
	Price               int64      `gorm:"not null" json:"price"` // 最小货币单位
	VoucherValidityDays int        `gorm:"not null;default:0" json:"voucherValidityDays"`
	IsActive            bool       `gorm:"not null;default:true" json:"isActive"`
	ValidFrom           time.Time  `gorm:"not null" json:"validFrom"`
	ValidUntil          *time.Time `json:"validUntil,omitempty"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// IsPurchasable 套餐启用且在有效期内
func (p *SubscriptionPlan) IsPurchasable(now time.Time) bool {
	if !p.IsActive || now.Before(p.ValidFrom) {
		return false
	}
	return p.ValidUntil == nil || !now.After(*p.ValidUntil)
}

// Subscription 用户订阅，保存下单时的套餐快照
type Subscription struct {
	baseModel.BaseModel
	UserID string `gorm:"size:36;not null;index" json:"userId"`
	PlanID string `gorm:"size:36;not null;index" json:"planId"`

	PlanName       string `gorm:"size:100;not null" json:"planName"`
	DurationDays   int    `gorm:"not null" json:"durationDays"`
	VouchersPerDay int    `gorm:"not null" json:"vouchersPerDay"`
	TotalVouchers  int    `gorm:"not null" json:"totalVouchers"`
	Price          int64  `gorm:"not null" json:"price"`

	PurchaseDate        time.Time `gorm:"not null" json:"purchaseDate"`
	StartDate           time.Time `gorm:"not null" json:"startDate"`
	EndDate             time.Time `gorm:"not null;index" json:"endDate"`
	TotalVouchersIssued int       `gorm:"not null;default:0" json:"totalVouchersIssued"`
	VoucherExpiryDate   time.Time `gorm:"not null" json:"voucherExpiryDate"`
	Status              string    `gorm:"size:16;not null;default:'ACTIVE';index" json:"status"`
	AmountPaid          int64     `gorm:"not null" json:"amountPaid"`
	PaymentID           *string   `gorm:"size:64" json:"paymentId,omitempty"`

	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason *string    `gorm:"size:255" json:"cancellationReason,omitempty"`
	CancelledBy        *string    `gorm:"size:36" json:"cancelledBy,omitempty"`
	RefundEligible     *bool      `json:"refundEligible,omitempty"`
	RefundAmount       *int64     `json:"refundAmount,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

const (
	StatusActive    = "ACTIVE"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"

	// RefundUsageLimit 已用比例不超过该值才可退款 (百分比)
	RefundUsageLimit = 25
)
