package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meal_voucher/internal/domain/refund/model"
	"meal_voucher/internal/domain/refund/repository"
	"meal_voucher/internal/domain/refund/service"
	"meal_voucher/internal/pkg/middleware"
	"meal_voucher/pkg/errutil"
	"meal_voucher/pkg/response"
	"meal_voucher/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRefundService struct {
	mock.Mock
}

func (m *MockRefundService) Initiate(ctx context.Context, p service.InitiateParams) (*service.InitiateResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitiateResult), args.Error(1)
}

func (m *MockRefundService) Process(ctx context.Context, id string) (*model.Refund, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Refund), args.Bool(1), args.Error(2)
}

func (m *MockRefundService) SweepFailed(ctx context.Context, now time.Time) (*service.SweepResult, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(*service.SweepResult), args.Error(1)
}

func (m *MockRefundService) Approve(ctx context.Context, id, adminID string) (*model.Refund, bool, error) {
	args := m.Called(ctx, id, adminID)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Refund), args.Bool(1), args.Error(2)
}

func (m *MockRefundService) Cancel(ctx context.Context, id, reason string) (*model.Refund, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Refund), args.Error(1)
}

func (m *MockRefundService) Retry(ctx context.Context, id string) (*model.Refund, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*model.Refund), args.Bool(1), args.Error(2)
}

func (m *MockRefundService) Get(ctx context.Context, id string) (*model.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Refund), args.Error(1)
}

func (m *MockRefundService) GetByNo(ctx context.Context, refundNo string) (*model.Refund, error) {
	args := m.Called(ctx, refundNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Refund), args.Error(1)
}

func (m *MockRefundService) ListByOrder(ctx context.Context, orderID string) ([]model.Refund, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]model.Refund), args.Error(1)
}

func (m *MockRefundService) List(ctx context.Context, f repository.Filter, page utils.Pagination) (*utils.PageResult, error) {
	args := m.Called(ctx, f, page)
	return args.Get(0).(*utils.PageResult), args.Error(1)
}

func setupRouter(svc service.RefundService, userID string, role int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewRefundHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	})
	r.POST("/refunds", h.Initiate)
	r.GET("/refunds/:id", h.Get)
	r.GET("/refunds/order/:orderId", h.ListByOrder)
	r.POST("/admin/refunds/:id/process", h.Process)
	r.POST("/admin/refunds/:id/cancel", h.Cancel)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, response.Response) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestInitiateHandler(t *testing.T) {
	svc := new(MockRefundService)
	r := setupRouter(svc, "admin-1", utils.RoleAdmin)

	svc.On("Initiate", mock.Anything, service.InitiateParams{
		OrderID:     "order-1",
		Reason:      "ORDER_CANCELLED",
		RefundType:  "PARTIAL",
		Amount:      500,
		InitiatedBy: "admin-1",
	}).Return(&service.InitiateResult{Refund: &model.Refund{RefundNo: "RF1", Status: model.StatusInitiated}}, nil).Once()

	w, resp := doJSON(r, http.MethodPost, "/refunds", InitiateInput{
		OrderID: "order-1", Reason: "ORDER_CANCELLED", RefundType: "PARTIAL", Amount: 500,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	svc.On("Initiate", mock.Anything, mock.Anything).
		Return(nil, errutil.Conflict("a refund is already in progress for this order")).Once()
	w, resp = doJSON(r, http.MethodPost, "/refunds", InitiateInput{OrderID: "order-1", Reason: "OTHER"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrRefundConflict, resp.Code)

	w, _ = doJSON(r, http.MethodPost, "/refunds", InitiateInput{OrderID: "order-1", Reason: "CHANGED_MIND"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestGetHandler_Ownership(t *testing.T) {
	svc := new(MockRefundService)
	svc.On("Get", mock.Anything, "r-1").Return(&model.Refund{UserID: "user-1"}, nil)
	svc.On("Get", mock.Anything, "r-2").Return(nil, errutil.NotFound("refund not found"))

	w, _ := doJSON(setupRouter(svc, "user-1", utils.RoleUser), http.MethodGet, "/refunds/r-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(setupRouter(svc, "user-2", utils.RoleUser), http.MethodGet, "/refunds/r-1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := doJSON(setupRouter(svc, "user-1", utils.RoleUser), http.MethodGet, "/refunds/r-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrRefundNotFound, resp.Code)
}

func TestListByOrderHandler_FiltersForUsers(t *testing.T) {
	svc := new(MockRefundService)
	svc.On("ListByOrder", mock.Anything, "order-1").Return([]model.Refund{{UserID: "user-1"}, {UserID: "user-2"}}, nil)

	_, resp := doJSON(setupRouter(svc, "user-1", utils.RoleUser), http.MethodGet, "/refunds/order/order-1", nil)
	list, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	_, resp = doJSON(setupRouter(svc, "admin", utils.RoleAdmin), http.MethodGet, "/refunds/order/order-1", nil)
	list, ok = resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestProcessHandler_GatewayFailureIsNotAnHTTPError(t *testing.T) {
	svc := new(MockRefundService)
	svc.On("Process", mock.Anything, "r-1").Return(&model.Refund{Status: model.StatusFailed}, false, nil)

	w, resp := doJSON(setupRouter(svc, "admin", utils.RoleAdmin), http.MethodPost, "/admin/refunds/r-1/process", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, data["success"])
}

func TestCancelHandler_EmptyBody(t *testing.T) {
	svc := new(MockRefundService)
	svc.On("Cancel", mock.Anything, "r-1", "").Return(&model.Refund{Status: model.StatusCancelled}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/admin/refunds/r-1/cancel", nil)
	w := httptest.NewRecorder()
	setupRouter(svc, "admin", utils.RoleAdmin).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}
