package strategy

import (
	"meal_voucher/internal/pkg/config"
	"meal_voucher/pkg/logger"

	"go.uber.org/zap"
)

// NewRouterFromConfig 按配置注册各渠道，未配置或初始化失败的渠道跳过
func NewRouterFromConfig(cfg *config.Config) *Router {
	r := NewRouter()

	// 支付宝
	if cfg.Alipay.AppID != "" {
		s, err := NewAlipayStrategy(cfg.Alipay)
		if err != nil {
			logger.Log.Error("failed to init alipay refund strategy", zap.Error(err))
		} else {
			r.Register("alipay", s)
		}
	}

	// 微信支付
	if cfg.Wechat.MchID != "" {
		s, err := NewWechatStrategy(cfg.Wechat)
		if err != nil {
			logger.Log.Error("failed to init wechat refund strategy", zap.Error(err))
		} else {
			r.Register("wechat", s)
		}
	}

	// Midtrans
	if cfg.Midtrans.ServerKey != "" {
		s, err := NewMidtransStrategy(cfg.Midtrans)
		if err != nil {
			logger.Log.Error("failed to init midtrans refund strategy", zap.Error(err))
		} else {
			r.Register("midtrans", s)
		}
	}

	logger.Log.Info("refund gateways registered", zap.Strings("channels", r.Channels()))
	return r
}
