package strategy

import (
	"context"
	"errors"
	"fmt"

	"meal_voucher/internal/pkg/config"

	"github.com/smartwalle/alipay/v3"
)

// alipayRefunder alipay.Client 中退款用到的部分
type alipayRefunder interface {
	TradeRefund(param alipay.TradeRefund) (*alipay.TradeRefundRsp, error)
}

type AlipayStrategy struct {
	client alipayRefunder
}

func NewAlipayStrategy(cfg config.AlipayConfig) (*AlipayStrategy, error) {
	if cfg.AppID == "" {
		return nil, errors.New("alipay config missing")
	}

	client, err := alipay.New(cfg.AppID, cfg.PrivateKey, cfg.IsProduction)
	if err != nil {
		return nil, err
	}

	// 加载支付宝公钥 (用于验证响应签名)
	if err = client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, err
	}

	return &AlipayStrategy{client: client}, nil
}

// 重试也不会成功的业务错误
var alipayPermanentCodes = map[string]bool{
	"ACQ.TRADE_NOT_EXIST":             true,
	"ACQ.TRADE_STATUS_ERROR":          true,
	"ACQ.TRADE_HAS_CLOSE":             true,
	"ACQ.REFUND_AMT_NOT_EQUAL_TOTAL":  true,
	"ACQ.REFUND_FEE_ERROR":            true,
	"ACQ.REASON_TRADE_BEEN_FREEZEN":   true,
	"ACQ.DISCORDANT_REPEAT_REQUEST":   true,
	"ACQ.ONLINE_TRADE_VOUCHER_REFUND": true,
}

// Refund 按退款单号幂等，金额换算为元；SDK 不接收 context
func (s *AlipayStrategy) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Channel: "alipay", Code: "CANCELLED", Message: err.Error()}
	}

	p := alipay.TradeRefund{
		OutTradeNo:   req.PaymentID,
		RefundAmount: fmt.Sprintf("%.2f", float64(req.Amount)/100),
		RefundReason: req.Reason,
		OutRequestNo: req.RefundNo,
	}

	rsp, err := s.client.TradeRefund(p)
	if err != nil {
		return nil, &GatewayError{Channel: "alipay", Code: "NETWORK", Message: err.Error()}
	}
	if rsp.Code != alipay.CodeSuccess {
		code := string(rsp.SubCode)
		if code == "" {
			code = string(rsp.Code)
		}
		return nil, &GatewayError{
			Channel:   "alipay",
			Code:      code,
			Message:   rsp.SubMsg,
			Permanent: alipayPermanentCodes[code],
		}
	}

	return &RefundResult{GatewayRefundID: rsp.TradeNo, Status: "SUCCESS"}, nil
}

var (
	_ RefundStrategy = (*AlipayStrategy)(nil)
	_ alipayRefunder = (*alipay.Client)(nil)
)
