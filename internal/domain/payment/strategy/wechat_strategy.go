package strategy

import (
	"context"
	"errors"

	"meal_voucher/internal/pkg/config"

	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/services/refunddomestic"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

// wechatRefunder refunddomestic.RefundsApiService 中退款用到的部分
type wechatRefunder interface {
	Create(ctx context.Context, req refunddomestic.CreateRequest) (*refunddomestic.Refund, *core.APIResult, error)
}

type WechatStrategy struct {
	refunds   wechatRefunder
	notifyURL string
}

func NewWechatStrategy(cfg config.WechatPayConfig) (*WechatStrategy, error) {
	if cfg.MchID == "" {
		return nil, errors.New("wechat pay config missing")
	}

	// 1. 加载商户私钥
	mchPrivateKey, err := utils.LoadPrivateKey(cfg.MchPrivateKey)
	if err != nil {
		return nil, err
	}

	// 2. 初始化 Client，自动下载平台证书用于验签
	client, err := core.NewClient(context.Background(),
		option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.MchCertificateSerial, mchPrivateKey, cfg.APIv3Key),
	)
	if err != nil {
		return nil, err
	}

	return &WechatStrategy{
		refunds:   &refunddomestic.RefundsApiService{Client: client},
		notifyURL: cfg.RefundNotifyURL,
	}, nil
}

var wechatTransientCodes = map[string]bool{
	"SYSTEM_ERROR":      true,
	"FREQUENCY_LIMITED": true,
	"NOT_ENOUGH":        true,
}

// Refund 金额单位为分
func (s *WechatStrategy) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	createReq := refunddomestic.CreateRequest{
		OutTradeNo:  core.String(req.PaymentID),
		OutRefundNo: core.String(req.RefundNo),
		Reason:      core.String(req.Reason),
		Amount: &refunddomestic.AmountReq{
			Refund:   core.Int64(req.Amount),
			Total:    core.Int64(req.TotalAmount),
			Currency: core.String("CNY"),
		},
	}
	if s.notifyURL != "" {
		createReq.NotifyUrl = core.String(s.notifyURL)
	}

	resp, _, err := s.refunds.Create(ctx, createReq)
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) {
			return nil, &GatewayError{
				Channel:   "wechat",
				Code:      apiErr.Code,
				Message:   apiErr.Message,
				Permanent: apiErr.StatusCode < 500 && !wechatTransientCodes[apiErr.Code],
			}
		}
		return nil, &GatewayError{Channel: "wechat", Code: "NETWORK", Message: err.Error()}
	}

	result := &RefundResult{}
	if resp.RefundId != nil {
		result.GatewayRefundID = *resp.RefundId
	}
	if resp.Status != nil {
		result.Status = string(*resp.Status)
		if *resp.Status == refunddomestic.STATUS_ABNORMAL || *resp.Status == refunddomestic.STATUS_CLOSED {
			return nil, &GatewayError{Channel: "wechat", Code: result.Status, Message: "refund not accepted", Permanent: true}
		}
	}
	return result, nil
}

var _ RefundStrategy = (*WechatStrategy)(nil)
