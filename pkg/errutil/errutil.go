package errutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	KindNotFound             Kind = "NOT_FOUND"
	KindInsufficientVouchers Kind = "INSUFFICIENT_VOUCHERS"
	KindConflict             Kind = "CONFLICT"
	KindGatewayFailure       Kind = "GATEWAY_FAILURE"
	KindValidationFailed     Kind = "VALIDATION_FAILED"
	KindInternal             Kind = "INTERNAL"
)

type Detail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BaseError 带分类的业务错误
type BaseError struct {
	Kind    Kind     `json:"kind"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
	Err     error    `json:"-"`
}

func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Err
}

// HTTPStatus 错误分类对应的 HTTP 状态码
func (e *BaseError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientVouchers, KindConflict:
		return http.StatusConflict
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindGatewayFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Option func(*BaseError)

func WithDetails(details ...Detail) Option {
	return func(be *BaseError) { be.Details = append(be.Details, details...) }
}

// WithDetail 追加单个字段说明
func WithDetail(field, message string) Option {
	return WithDetails(Detail{Field: field, Message: message})
}

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(kind Kind, message string, opts ...Option) error {
	be := &BaseError{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(be)
	}
	return be
}

func NotFound(msg string, opts ...Option) error {
	return New(KindNotFound, msg, opts...)
}

func InsufficientVouchers(msg string, opts ...Option) error {
	return New(KindInsufficientVouchers, msg, opts...)
}

func Conflict(msg string, opts ...Option) error {
	return New(KindConflict, msg, opts...)
}

func GatewayFailure(msg string, opts ...Option) error {
	return New(KindGatewayFailure, msg, opts...)
}

func ValidationFailed(msg string, opts ...Option) error {
	return New(KindValidationFailed, msg, opts...)
}

func Internal(msg string, err error) error {
	return New(KindInternal, msg, WithErr(err))
}

// KindOf 返回错误分类，非 BaseError 视为 Internal
func KindOf(err error) Kind {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// As 取出 BaseError
func As(err error) (*BaseError, bool) {
	var be *BaseError
	ok := errors.As(err, &be)
	return be, ok
}
