package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 认证错误 100xx
	ErrAuthFailed   = 10003
	ErrTokenInvalid = 10004
	ErrNoPermission = 10005

	// 餐券模块错误 200xx
	ErrVoucherNotFound     = 20001
	ErrVoucherInsufficient = 20002
	ErrVoucherNotEligible  = 20003

	// 订阅模块错误 210xx
	ErrSubscriptionNotFound = 21001
	ErrPlanUnavailable      = 21002

	// 退款模块错误 220xx
	ErrRefundNotFound     = 22001
	ErrRefundConflict     = 22002
	ErrRefundInvalidState = 22003
	ErrGatewayFailure     = 22004

	// 订单错误 230xx
	ErrOrderNotFound = 23001

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
	ErrNotFound        = 50004
	ErrConflict        = 50005
)
