package handler

import (
	"net/http"
	"time"

	"meal_voucher/internal/pkg/cutoff"
	"meal_voucher/pkg/logger"
	"meal_voucher/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var timeNow = func() time.Time { return time.Now().UTC() }

type CutoffHandler struct {
	policy *cutoff.Policy
}

func NewCutoffHandler(policy *cutoff.Policy) *CutoffHandler {
	return &CutoffHandler{policy: policy}
}

type UpdateCutoffInput struct {
	Lunch  string `json:"lunch" binding:"omitempty,hhmm"`
	Dinner string `json:"dinner" binding:"omitempty,hhmm"`
}

// CutoffView 截单配置及各餐段当前状态
type CutoffView struct {
	Config  cutoff.Config `json:"config"`
	Windows []cutoff.Info `json:"windows"`
}

// Get 查看截单时间
// @Summary 截单时间
// @Tags Cutoff
// @Produce json
// @Success 200 {object} response.Response{data=CutoffView}
// @Router /cutoff [get]
func (h *CutoffHandler) Get(c *gin.Context) {
	response.Success(c, h.view(timeNow()))
}

// Update 修改截单时间，立即对所有请求生效
// @Summary 修改截单时间
// @Tags Admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param input body UpdateCutoffInput true "Cutoff"
// @Success 200 {object} response.Response{data=CutoffView}
// @Router /admin/cutoff [put]
func (h *CutoffHandler) Update(c *gin.Context) {
	var input UpdateCutoffInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	cfg, err := h.policy.Update(input.Lunch, input.Dinner)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	logger.Log.Info("cutoff times updated",
		zap.String("lunch", cfg.Lunch),
		zap.String("dinner", cfg.Dinner),
	)
	response.Success(c, h.view(timeNow()))
}

func (h *CutoffHandler) view(now time.Time) CutoffView {
	v := CutoffView{Config: h.policy.Config()}
	for _, w := range cutoff.Windows {
		v.Windows = append(v.Windows, h.policy.Describe(w, now))
	}
	return v
}
