package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 餐券指标
	voucherRedemptions  *prometheus.CounterVec
	vouchersRestored    *prometheus.CounterVec
	vouchersExpired     prometheus.Counter
	vouchersIssued      prometheus.Counter
	subscriptionsEvents *prometheus.CounterVec

	// 退款指标
	refundTransitions *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	refundSweepRuns   *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器 (注册到默认 Registry，只能调用一次)
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		voucherRedemptions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voucher_redemptions_total",
				Help: "Voucher redemption attempts by result",
			},
			[]string{"result"},
		),
		vouchersRestored: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vouchers_restored_total",
				Help: "Vouchers restored by reason",
			},
			[]string{"reason"},
		),
		vouchersExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vouchers_expired_total",
				Help: "Vouchers moved to EXPIRED by the sweep",
			},
		),
		vouchersIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vouchers_issued_total",
				Help: "Vouchers minted by subscription purchases",
			},
		),
		subscriptionsEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_events_total",
				Help: "Subscription lifecycle events",
			},
			[]string{"event"},
		),

		refundTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refund_transitions_total",
				Help: "Refund status transitions by target status",
			},
			[]string{"status"},
		),
		gatewayDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refund_gateway_duration_seconds",
				Help:    "Refund gateway call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel", "result"},
		),
		refundSweepRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_runs_total",
				Help: "Sweep executions by sweep name",
			},
			[]string{"sweep"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordRedemption(result string) {
	m.voucherRedemptions.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) RecordRestored(reason string, count int) {
	m.vouchersRestored.WithLabelValues(reason).Add(float64(count))
}

func (m *MetricsCollector) RecordExpired(count int64) {
	m.vouchersExpired.Add(float64(count))
}

func (m *MetricsCollector) RecordIssued(count int) {
	m.vouchersIssued.Add(float64(count))
}

func (m *MetricsCollector) RecordSubscriptionEvent(event string) {
	m.subscriptionsEvents.WithLabelValues(event).Inc()
}

func (m *MetricsCollector) RecordRefundTransition(status string) {
	m.refundTransitions.WithLabelValues(status).Inc()
}

func (m *MetricsCollector) RecordGatewayCall(channel string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.gatewayDuration.WithLabelValues(channel, result).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordSweep(name string) {
	m.refundSweepRuns.WithLabelValues(name).Inc()
}

// GetStatusCategory 将状态码归类为 2xx/4xx/5xx
func GetStatusCategory(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var (
	globalCollector *MetricsCollector
	once            sync.Once
)

// GetGlobalCollector 获取全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	once.Do(func() {
		globalCollector = NewMetricsCollector()
	})
	return globalCollector
}
