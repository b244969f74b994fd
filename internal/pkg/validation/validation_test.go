package validation

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

type mealInput struct {
	MealWindow string `binding:"required,mealwindow"`
	Cutoff     string `binding:"omitempty,hhmm"`
}

func TestRegister(t *testing.T) {
	Register()

	assert.NoError(t, binding.Validator.ValidateStruct(&mealInput{MealWindow: "LUNCH", Cutoff: "11:30"}))
	assert.NoError(t, binding.Validator.ValidateStruct(&mealInput{MealWindow: "dinner"}))
	assert.Error(t, binding.Validator.ValidateStruct(&mealInput{MealWindow: "BRUNCH"}))
	assert.Error(t, binding.Validator.ValidateStruct(&mealInput{MealWindow: "LUNCH", Cutoff: "1130"}))
}
