package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"meal_voucher/internal/pkg/config"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
)

// midtransRefunder coreapi.Client 中退款用到的部分
type midtransRefunder interface {
	RefundTransaction(orderID string, req *coreapi.RefundReq) (*coreapi.RefundResponse, *midtrans.Error)
}

type MidtransStrategy struct {
	client midtransRefunder
}

func NewMidtransStrategy(cfg config.MidtransConfig) (*MidtransStrategy, error) {
	if cfg.ServerKey == "" {
		return nil, errors.New("midtrans config missing")
	}

	env := midtrans.Sandbox
	if cfg.IsProduction {
		env = midtrans.Production
	}
	var client coreapi.Client
	client.New(cfg.ServerKey, env)

	return &MidtransStrategy{client: &client}, nil
}

// Refund Midtrans SDK 不接收 context，超时由 HTTP 客户端控制
func (s *MidtransStrategy) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &GatewayError{Channel: "midtrans", Code: "CANCELLED", Message: err.Error()}
	}

	resp, midErr := s.client.RefundTransaction(req.PaymentID, &coreapi.RefundReq{
		RefundKey: req.RefundNo,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if midErr != nil {
		status := midErr.GetStatusCode()
		return nil, &GatewayError{
			Channel:   "midtrans",
			Code:      fmt.Sprintf("%d", status),
			Message:   midErr.GetMessage(),
			Permanent: status >= 400 && status < 500 && status != http.StatusTooManyRequests,
		}
	}

	if resp.StatusCode != "" && resp.StatusCode != "200" {
		return nil, &GatewayError{
			Channel:   "midtrans",
			Code:      resp.StatusCode,
			Message:   resp.StatusMessage,
			Permanent: resp.StatusCode[0] == '4',
		}
	}

	return &RefundResult{GatewayRefundID: fmt.Sprint(resp.RefundChargebackID), Status: "SUCCESS"}, nil
}

var _ RefundStrategy = (*MidtransStrategy)(nil)
