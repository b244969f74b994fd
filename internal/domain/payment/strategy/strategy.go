package strategy

import (
	"context"
	"errors"
	"fmt"
)

// RefundRequest 网关退款请求，金额为最小货币单位
type RefundRequest struct {
	PaymentID   string // 原支付交易号 / 商户订单号
	RefundNo    string // 退款单号，网关侧幂等键
	Amount      int64
	TotalAmount int64 // 原订单实付金额
	Reason      string
}

// RefundResult 网关受理结果
type RefundResult struct {
	GatewayRefundID string
	Status          string
}

// RefundStrategy 各支付渠道的退款实现
type RefundStrategy interface {
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// GatewayError 网关失败，Permanent 表示重试也不会成功
type GatewayError struct {
	Channel   string
	Code      string
	Message   string
	Permanent bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s refund failed: %s %s", e.Channel, e.Code, e.Message)
}

// IsPermanent 是否为不可重试的网关错误
func IsPermanent(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Permanent
	}
	return false
}

// ErrUnsupportedChannel 渠道未配置
var ErrUnsupportedChannel = errors.New("unsupported payment channel")

// Router 按支付渠道分发退款请求
type Router struct {
	strategies map[string]RefundStrategy
}

func NewRouter() *Router {
	return &Router{strategies: make(map[string]RefundStrategy)}
}

// Register 注册渠道
func (r *Router) Register(channel string, s RefundStrategy) {
	r.strategies[channel] = s
}

// Channels 已注册的渠道
func (r *Router) Channels() []string {
	channels := make([]string, 0, len(r.strategies))
	for ch := range r.strategies {
		channels = append(channels, ch)
	}
	return channels
}

// Refund 渠道未注册时返回不可重试的 GatewayError
func (r *Router) Refund(ctx context.Context, channel string, req RefundRequest) (*RefundResult, error) {
	s, ok := r.strategies[channel]
	if !ok {
		return nil, &GatewayError{
			Channel:   channel,
			Code:      "UNSUPPORTED_CHANNEL",
			Message:   ErrUnsupportedChannel.Error(),
			Permanent: true,
		}
	}
	return s.Refund(ctx, req)
}
