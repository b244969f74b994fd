package cutoff

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// MealWindow 餐段
type MealWindow string

const (
	Lunch  MealWindow = "LUNCH"
	Dinner MealWindow = "DINNER"
)

// Windows 按一天内的先后顺序
var Windows = []MealWindow{Lunch, Dinner}

// ParseMealWindow 解析餐段 (不区分大小写)
func ParseMealWindow(s string) (MealWindow, bool) {
	w := MealWindow(strings.ToUpper(strings.TrimSpace(s)))
	switch w {
	case Lunch, Dinner:
		return w, true
	}
	return "", false
}

const (
	DefaultLunch    = "11:00"
	DefaultDinner   = "21:00"
	DefaultTimezone = "Asia/Shanghai"

	clockLayout = "15:04"
	dateLayout  = "2006-01-02"
)

// Config 截单配置快照
type Config struct {
	Lunch    string `json:"lunch"`
	Dinner   string `json:"dinner"`
	Timezone string `json:"timezone"`
}

// Info 餐段截单状态
type Info struct {
	MealWindow     MealWindow `json:"mealWindow"`
	CutoffTime     string     `json:"cutoffTime"`
	Timezone       string     `json:"timezone"`
	IsOpen         bool       `json:"isOpen"`
	Message        string     `json:"message"`
	NextOpenWindow MealWindow `json:"nextOpenWindow,omitempty"`
	NextOpenDate   string     `json:"nextOpenDate,omitempty"`
}

type settings struct {
	cutoffs map[MealWindow]time.Duration // 距当天零点的偏移
	raw     map[MealWindow]string
	loc     *time.Location
}

// Policy 截单策略，读无锁，更新整体替换 (后写覆盖)
type Policy struct {
	current atomic.Pointer[settings]
}

// NewPolicy 创建截单策略
func NewPolicy(lunch, dinner, timezone string) (*Policy, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	s, err := buildSettings(lunch, dinner, loc)
	if err != nil {
		return nil, err
	}
	p := &Policy{}
	p.current.Store(s)
	return p, nil
}

// NewDefaultPolicy 默认 11:00 / 21:00
func NewDefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultLunch, DefaultDinner, DefaultTimezone)
	if err != nil {
		// 系统缺少时区数据时退回固定 UTC+8
		s, _ := buildSettings(DefaultLunch, DefaultDinner, time.FixedZone("CST", 8*3600))
		p = &Policy{}
		p.current.Store(s)
	}
	return p
}

func buildSettings(lunch, dinner string, loc *time.Location) (*settings, error) {
	l, err := parseClock(lunch)
	if err != nil {
		return nil, fmt.Errorf("lunch cutoff: %w", err)
	}
	d, err := parseClock(dinner)
	if err != nil {
		return nil, fmt.Errorf("dinner cutoff: %w", err)
	}
	if l >= d {
		return nil, errors.New("lunch cutoff must be earlier than dinner cutoff")
	}
	return &settings{
		cutoffs: map[MealWindow]time.Duration{Lunch: l, Dinner: d},
		raw:     map[MealWindow]string{Lunch: lunch, Dinner: dinner},
		loc:     loc,
	}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return 0, fmt.Errorf("expected HH:mm, got %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Config 当前配置
func (p *Policy) Config() Config {
	s := p.current.Load()
	return Config{Lunch: s.raw[Lunch], Dinner: s.raw[Dinner], Timezone: s.loc.String()}
}

// Update 更新截单时间，空字符串保留原值
func (p *Policy) Update(lunch, dinner string) (Config, error) {
	old := p.current.Load()
	if lunch == "" {
		lunch = old.raw[Lunch]
	}
	if dinner == "" {
		dinner = old.raw[Dinner]
	}
	s, err := buildSettings(lunch, dinner, old.loc)
	if err != nil {
		return Config{}, err
	}
	p.current.Store(s)
	return p.Config(), nil
}

func (s *settings) cutoffAt(w MealWindow, day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(s.cutoffs[w])
}

// IsOpen 餐段当天是否仍可下单
func (p *Policy) IsOpen(w MealWindow, now time.Time) bool {
	s := p.current.Load()
	if _, ok := s.cutoffs[w]; !ok {
		return false
	}
	local := now.In(s.loc)
	return local.Before(s.cutoffAt(w, local))
}

// Describe 餐段截单状态及下一个可下单餐段
func (p *Policy) Describe(w MealWindow, now time.Time) Info {
	s := p.current.Load()
	info := Info{MealWindow: w, Timezone: s.loc.String()}
	if _, ok := s.cutoffs[w]; !ok {
		info.Message = fmt.Sprintf("unknown meal window %q", w)
		return info
	}

	local := now.In(s.loc)
	info.CutoffTime = s.raw[w]
	info.IsOpen = local.Before(s.cutoffAt(w, local))

	next, day := s.nextOpen(local)
	info.NextOpenWindow = next
	info.NextOpenDate = day.Format(dateLayout)

	if info.IsOpen {
		info.Message = fmt.Sprintf("%s orders are open until %s", w, info.CutoffTime)
		return info
	}
	when := "today"
	if day.YearDay() != local.YearDay() || day.Year() != local.Year() {
		when = "tomorrow"
	}
	info.Message = fmt.Sprintf("%s ordering closed at %s, next available: %s %s", w, info.CutoffTime, next, when)
	return info
}

// nextOpen 当天第一个未截单的餐段，都已截单则为次日第一个餐段
func (s *settings) nextOpen(local time.Time) (MealWindow, time.Time) {
	for _, w := range Windows {
		if local.Before(s.cutoffAt(w, local)) {
			return w, local
		}
	}
	return Windows[0], local.AddDate(0, 0, 1)
}
