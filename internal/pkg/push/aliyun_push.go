package push

import (
	"encoding/json"
	"errors"

	"meal_voucher/internal/pkg/config"
	"meal_voucher/pkg/logger"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/push"
	"go.uber.org/zap"
)

// ErrPushNotConfigured 未配置推送
var ErrPushNotConfigured = errors.New("push config is missing")

type PushService interface {
	PushToDevice(deviceID string, title, body string, extParameters map[string]string) error
	PushToAccount(accountID string, title, body string, extParameters map[string]string) error
}

type AliyunPushService struct {
	client *push.Client
	appKey int64
}

func NewAliyunPushService(cfg config.PushConfig) (*AliyunPushService, error) {
	if cfg.AccessKeyID == "" || cfg.AppKey == 0 {
		return nil, ErrPushNotConfigured
	}

	client, err := push.NewClientWithAccessKey(
		cfg.RegionID,
		cfg.AccessKeyID,
		cfg.AccessKeySecret,
	)
	if err != nil {
		return nil, err
	}

	return &AliyunPushService{
		client: client,
		appKey: cfg.AppKey,
	}, nil
}

func (s *AliyunPushService) PushToDevice(deviceID string, title, body string, extParameters map[string]string) error {
	return s.sendPush("DEVICE", deviceID, title, body, extParameters)
}

func (s *AliyunPushService) PushToAccount(accountID string, title, body string, extParameters map[string]string) error {
	return s.sendPush("ACCOUNT", accountID, title, body, extParameters)
}

func (s *AliyunPushService) sendPush(target, targetValue, title, body string, extParameters map[string]string) error {
	request := push.CreatePushRequest()
	request.AppKey = requests.NewInteger(int(s.appKey))
	request.Target = target
	request.TargetValue = targetValue
	request.Title = title
	request.Body = body
	request.DeviceType = "ALL"
	request.PushType = "NOTICE"

	if len(extParameters) > 0 {
		extJSON, _ := json.Marshal(extParameters)
		request.AndroidExtParameters = string(extJSON)
		request.IOSExtParameters = string(extJSON)
	}

	_, err := s.client.Push(request)
	return err
}

// NotifyAccount 异步推送给用户，svc 为 nil 时忽略，失败只记日志
func NotifyAccount(svc PushService, accountID, title, body string, ext map[string]string) {
	if svc == nil || accountID == "" {
		return
	}
	go func() {
		if err := svc.PushToAccount(accountID, title, body, ext); err != nil {
			logger.Log.Warn("push notification failed",
				zap.String("account_id", accountID),
				zap.String("title", title),
				zap.Error(err),
			)
		}
	}()
}
