package validation

import (
	"sync"
	"time"

	"meal_voucher/internal/pkg/cutoff"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var once sync.Once

// Register 注册自定义校验规则到 gin 的 validator
//
//	mealwindow: LUNCH / DINNER
//	hhmm:       15:04 格式的时间
func Register() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("mealwindow", validateMealWindow)
		_ = v.RegisterValidation("hhmm", validateClock)
	})
}

func validateMealWindow(fl validator.FieldLevel) bool {
	_, ok := cutoff.ParseMealWindow(fl.Field().String())
	return ok
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}
