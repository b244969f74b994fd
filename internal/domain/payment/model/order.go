package model

import (
	"time"

	baseModel "meal_voucher/pkg/model"
)

// Order 订单 (由订单系统写入，这里只维护支付状态)
type Order struct {
	baseModel.BaseModel
	OrderNo       string     `gorm:"size:64;uniqueIndex;not null" json:"orderNo"`
	UserID        string     `gorm:"size:36;not null;index" json:"userId"`
	KitchenID     string     `gorm:"size:64" json:"kitchenId"`
	MenuType      string     `gorm:"size:16;not null;default:'MEAL'" json:"menuType"`
	MealWindow    string     `gorm:"size:16" json:"mealWindow"`
	AmountPaid    int64      `gorm:"not null;default:0" json:"amountPaid"` // 最小货币单位，纯餐券订单为 0
	PaymentStatus string     `gorm:"size:24;not null;default:'PENDING'" json:"paymentStatus"`
	PaymentID     *string    `gorm:"size:64" json:"paymentId,omitempty"` // 网关交易号
	Channel       string     `gorm:"size:16" json:"channel"`
	VoucherCount  int        `gorm:"not null;default:0" json:"voucherCount"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// IsVoucherOnly 未支付现金，全部由餐券抵扣
func (o *Order) IsVoucherOnly() bool {
	return o.AmountPaid == 0
}

const (
	PaymentStatusPending           = "PENDING"
	PaymentStatusPaid              = "PAID"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          = "REFUNDED"

	ChannelAlipay   = "alipay"
	ChannelWechat   = "wechat"
	ChannelMidtrans = "midtrans"
)
