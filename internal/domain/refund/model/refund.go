package model

import (
	"time"

	baseModel "meal_voucher/pkg/model"

	"gorm.io/datatypes"
)

// TimelineEntry 状态流转记录
type TimelineEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// Refund 退款单，一个订单同一时刻最多一笔进行中的退款
type Refund struct {
	baseModel.BaseModel
	RefundNo      string `gorm:"size:32;uniqueIndex;not null" json:"refundNo"`
	OrderID       string `gorm:"size:36;not null;index" json:"orderId"`
	UserID        string `gorm:"size:36;not null;index" json:"userId"`
	Amount        int64  `gorm:"not null" json:"amount"`
	RefundType    string `gorm:"size:16;not null" json:"refundType"`
	Reason        string `gorm:"size:32;not null" json:"reason"`
	ReasonDetails string `gorm:"size:500" json:"reasonDetails,omitempty"`
	Status        string `gorm:"size:16;not null;index:idx_refunds_status_retry,priority:1" json:"status"`

	OriginalPaymentID *string    `gorm:"size:64" json:"originalPaymentId,omitempty"`
	Channel           string     `gorm:"size:16" json:"channel"`
	GatewayRefundID   *string    `gorm:"size:64" json:"gatewayRefundId,omitempty"`
	FailureReason     *string    `gorm:"size:500" json:"failureReason,omitempty"`
	RetryCount        int        `gorm:"not null;default:0" json:"retryCount"`
	NextRetryAt       *time.Time `gorm:"index:idx_refunds_status_retry,priority:2" json:"nextRetryAt,omitempty"`

	InitiatedBy  string     `gorm:"size:36" json:"initiatedBy"`
	ApprovedBy   *string    `gorm:"size:36" json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time `json:"approvedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason *string    `gorm:"size:255" json:"cancelReason,omitempty"`

	StatusTimeline     datatypes.JSONSlice[TimelineEntry] `json:"statusTimeline"`
	VouchersRestored   bool                               `gorm:"not null;default:false" json:"vouchersRestored"`
	RestoredVoucherIDs datatypes.JSONSlice[string]        `json:"restoredVoucherIds"`

	// ActiveOrderID 仅在 INITIATED/PENDING/PROCESSING 时等于 OrderID，其余为 NULL
	// 唯一索引保证每个订单最多一笔进行中的退款
	ActiveOrderID *string `gorm:"size:36;uniqueIndex" json:"-"`
}

func (Refund) TableName() string {
	return "refunds"
}

const (
	StatusInitiated  = "INITIATED"
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"

	TypeFull    = "FULL"
	TypePartial = "PARTIAL"
)

// ActiveStatuses 进行中的状态
var ActiveStatuses = []string{StatusInitiated, StatusPending, StatusProcessing}

// ProcessableStatuses 允许发起网关调用的状态
var ProcessableStatuses = []string{StatusInitiated, StatusPending, StatusFailed}

// IsActive 是否占用订单的进行中名额
func IsActive(status string) bool {
	switch status {
	case StatusInitiated, StatusPending, StatusProcessing:
		return true
	}
	return false
}

// IsTerminal COMPLETED 与 CANCELLED 不再变化
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// WithEntry 返回追加了一条记录的新时间线
func (r *Refund) WithEntry(status, note string, at time.Time) datatypes.JSONSlice[TimelineEntry] {
	timeline := make(datatypes.JSONSlice[TimelineEntry], 0, len(r.StatusTimeline)+1)
	timeline = append(timeline, r.StatusTimeline...)
	return append(timeline, TimelineEntry{Status: status, Timestamp: at, Note: note})
}
