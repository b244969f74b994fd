package cutoff

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func newUTCPolicy(t *testing.T) *Policy {
	p, err := NewPolicy(DefaultLunch, DefaultDinner, "UTC")
	require.NoError(t, err)
	return p
}

func TestPolicy_IsOpen(t *testing.T) {
	p := newUTCPolicy(t)

	assert.True(t, p.IsOpen(Lunch, at(10, 59)))
	assert.False(t, p.IsOpen(Lunch, at(11, 0)))
	assert.True(t, p.IsOpen(Dinner, at(11, 0)))
	assert.False(t, p.IsOpen(Dinner, at(21, 30)))
	assert.False(t, p.IsOpen(MealWindow("BREAKFAST"), at(6, 0)))
}

func TestPolicy_IsOpenUsesPolicyTimezone(t *testing.T) {
	p, err := NewPolicy(DefaultLunch, DefaultDinner, "Asia/Shanghai")
	if err != nil {
		t.Skip("tzdata not available")
	}

	// 02:30 UTC = 10:30 Asia/Shanghai
	assert.True(t, p.IsOpen(Lunch, time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)))
	// 03:30 UTC = 11:30 Asia/Shanghai
	assert.False(t, p.IsOpen(Lunch, time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)))
}

func TestPolicy_Describe(t *testing.T) {
	p := newUTCPolicy(t)

	t.Run("open window points at itself", func(t *testing.T) {
		info := p.Describe(Lunch, at(9, 0))
		assert.True(t, info.IsOpen)
		assert.Equal(t, "11:00", info.CutoffTime)
		assert.Equal(t, Lunch, info.NextOpenWindow)
		assert.Equal(t, "2026-03-10", info.NextOpenDate)
	})

	t.Run("closed lunch falls through to dinner today", func(t *testing.T) {
		info := p.Describe(Lunch, at(12, 0))
		assert.False(t, info.IsOpen)
		assert.Equal(t, Dinner, info.NextOpenWindow)
		assert.Equal(t, "2026-03-10", info.NextOpenDate)
		assert.Contains(t, info.Message, "today")
	})

	t.Run("both closed rolls to tomorrow lunch", func(t *testing.T) {
		info := p.Describe(Dinner, at(22, 0))
		assert.False(t, info.IsOpen)
		assert.Equal(t, Lunch, info.NextOpenWindow)
		assert.Equal(t, "2026-03-11", info.NextOpenDate)
		assert.Contains(t, info.Message, "tomorrow")
	})

	t.Run("unknown window", func(t *testing.T) {
		info := p.Describe(MealWindow("SUPPER"), at(9, 0))
		assert.False(t, info.IsOpen)
		assert.Empty(t, info.CutoffTime)
	})
}

func TestPolicy_Update(t *testing.T) {
	p := newUTCPolicy(t)

	cfg, err := p.Update("10:30", "")
	require.NoError(t, err)
	assert.Equal(t, "10:30", cfg.Lunch)
	assert.Equal(t, "21:00", cfg.Dinner)
	assert.False(t, p.IsOpen(Lunch, at(10, 45)))

	_, err = p.Update("25:00", "")
	assert.Error(t, err)

	_, err = p.Update("22:00", "21:00")
	assert.Error(t, err)

	// 失败的更新不影响当前配置
	assert.Equal(t, "10:30", p.Config().Lunch)
}

func TestPolicy_ConcurrentReadWrite(t *testing.T) {
	p := newUTCPolicy(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = p.Update("10:00", "20:00")
		}()
		go func() {
			defer wg.Done()
			_ = p.Describe(Dinner, at(19, 0))
		}()
	}
	wg.Wait()

	assert.Equal(t, Config{Lunch: "10:00", Dinner: "20:00", Timezone: "UTC"}, p.Config())
}

func TestParseMealWindow(t *testing.T) {
	w, ok := ParseMealWindow(" lunch ")
	assert.True(t, ok)
	assert.Equal(t, Lunch, w)

	_, ok = ParseMealWindow("brunch")
	assert.False(t, ok)
}
