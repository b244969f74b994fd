package response

import (
	"net/http"

	"meal_voucher/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`    // 业务码
	Message string      `json:"message"` // 提示信息
	Data    interface{} `json:"data"`    // 数据
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, msg string) {
	c.JSON(httpCode, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// Fail 业务失败响应 (HTTP 200, 业务码非 0)
func Fail(c *gin.Context, errCode int, msg string) {
	c.JSON(http.StatusOK, Response{
		Code:    errCode,
		Message: msg,
		Data:    nil,
	})
}

// HandleError 按错误分类输出响应，details 放入 data
// fallback 为该模块 NotFound/Conflict 时使用的业务码，传 0 使用通用码
func HandleError(c *gin.Context, err error, fallback ...int) {
	be, ok := errutil.As(err)
	if !ok {
		Error(c, http.StatusInternalServerError, ErrServerInternal, err.Error())
		return
	}

	code := ErrServerInternal
	switch be.Kind {
	case errutil.KindNotFound:
		code = ErrNotFound
	case errutil.KindConflict:
		code = ErrConflict
	case errutil.KindInsufficientVouchers:
		code = ErrVoucherInsufficient
	case errutil.KindValidationFailed:
		code = ErrInvalidParam
	case errutil.KindGatewayFailure:
		code = ErrGatewayFailure
	}
	if len(fallback) > 0 && fallback[0] != 0 &&
		(be.Kind == errutil.KindNotFound || be.Kind == errutil.KindConflict) {
		code = fallback[0]
	}

	var data interface{}
	if len(be.Details) > 0 {
		data = be.Details
	}
	c.JSON(be.HTTPStatus(), Response{
		Code:    code,
		Message: be.Message,
		Data:    data,
	})
}
