package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	return Config{
		Database: DatabaseConfig{Host: "localhost", User: "postgres", DBName: "meal_voucher"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		JWT:      JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
		Voucher:  VoucherConfig{LunchCutoff: "11:00", DinnerCutoff: "21:00", Timezone: "UTC"},
		Refund:   RefundConfig{MaxRetries: 3},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"placeholder secret", func(c *Config) { c.JWT.Secret = "your_super_secret_key" }, "secure JWT secret"},
		{"short secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32"},
		{"missing database", func(c *Config) { c.Database.Host = "" }, "database configuration"},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }, "redis address"},
		{"bad cutoff", func(c *Config) { c.Voucher.LunchCutoff = "25:00" }, "voucher.lunch_cutoff"},
		{"bad timezone", func(c *Config) { c.Voucher.Timezone = "Mars/Olympus" }, "voucher.timezone"},
		{"no retries", func(c *Config) { c.Refund.MaxRetries = 0 }, "max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
