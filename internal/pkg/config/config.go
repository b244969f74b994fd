package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	JWT      JWTConfig       `mapstructure:"jwt"`
	App      AppConfig       `mapstructure:"app"`
	Log      LogConfig       `mapstructure:"log"`
	Voucher  VoucherConfig   `mapstructure:"voucher"`
	Refund   RefundConfig    `mapstructure:"refund"`
	Sweeper  SweeperConfig   `mapstructure:"sweeper"`
	Push     PushConfig      `mapstructure:"push"`
	Alipay   AlipayConfig    `mapstructure:"alipay"`
	Wechat   WechatPayConfig `mapstructure:"wechat"`
	Midtrans MidtransConfig  `mapstructure:"midtrans"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// 允许跨域的来源，空表示全部
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// VoucherConfig 餐券截单配置
type VoucherConfig struct {
	LunchCutoff  string `mapstructure:"lunch_cutoff"`  // HH:mm
	DinnerCutoff string `mapstructure:"dinner_cutoff"` // HH:mm
	Timezone     string `mapstructure:"timezone"`
	// 单用户核销限流
	RedeemRatePerSecond float64 `mapstructure:"redeem_rate_per_second"`
	RedeemBurst         int     `mapstructure:"redeem_burst"`
}

// RefundConfig 退款重试配置
type RefundConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	// 网关调用超时
	GatewayTimeout time.Duration `mapstructure:"gateway_timeout"`
}

// SweeperConfig 定时清理任务 (asynq cron 表达式)
type SweeperConfig struct {
	VoucherExpiryCron      string `mapstructure:"voucher_expiry_cron"`
	RefundRetryCron        string `mapstructure:"refund_retry_cron"`
	SubscriptionExpiryCron string `mapstructure:"subscription_expiry_cron"`
	Concurrency            int    `mapstructure:"concurrency"`
}

type PushConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	AppKey          int64  `mapstructure:"app_key"`
	RegionID        string `mapstructure:"region_id"` // e.g., "cn-hangzhou"
}

type AlipayConfig struct {
	AppID        string `mapstructure:"app_id"`
	PrivateKey   string `mapstructure:"private_key"`   // 应用私钥
	PublicKey    string `mapstructure:"public_key"`    // 支付宝公钥 (不是应用公钥)
	IsProduction bool   `mapstructure:"is_production"` // 是否生产环境
}

type WechatPayConfig struct {
	AppID                string `mapstructure:"app_id"`
	MchID                string `mapstructure:"mch_id"`
	MchCertificateSerial string `mapstructure:"mch_cert_serial"`
	MchPrivateKey        string `mapstructure:"mch_private_key"`
	APIv3Key             string `mapstructure:"apiv3_key"`
	RefundNotifyURL      string `mapstructure:"refund_notify_url"`
}

type MidtransConfig struct {
	ServerKey    string `mapstructure:"server_key"`
	IsProduction bool   `mapstructure:"is_production"`
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// Redis 配置验证
	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	// 截单时间
	for name, v := range map[string]string{"voucher.lunch_cutoff": c.Voucher.LunchCutoff, "voucher.dinner_cutoff": c.Voucher.DinnerCutoff} {
		if _, err := time.Parse("15:04", v); err != nil {
			return fmt.Errorf("%s must be HH:mm, got %q", name, v)
		}
	}
	if _, err := time.LoadLocation(c.Voucher.Timezone); err != nil {
		return fmt.Errorf("invalid voucher.timezone: %w", err)
	}

	if c.Refund.MaxRetries <= 0 {
		return errors.New("refund.max_retries must be positive")
	}

	return nil
}

// setDefaults 默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")

	v.SetDefault("voucher.lunch_cutoff", "11:00")
	v.SetDefault("voucher.dinner_cutoff", "21:00")
	v.SetDefault("voucher.timezone", "Asia/Shanghai")
	v.SetDefault("voucher.redeem_rate_per_second", 2)
	v.SetDefault("voucher.redeem_burst", 5)

	v.SetDefault("refund.max_retries", 3)
	v.SetDefault("refund.retry_delay", time.Hour)
	v.SetDefault("refund.lock_ttl", 30*time.Second)
	v.SetDefault("refund.gateway_timeout", 15*time.Second)

	v.SetDefault("sweeper.voucher_expiry_cron", "*/10 * * * *")
	v.SetDefault("sweeper.refund_retry_cron", "*/5 * * * *")
	v.SetDefault("sweeper.subscription_expiry_cron", "0 * * * *")
	v.SetDefault("sweeper.concurrency", 2)
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v := viper.GetViper()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量，如 REFUND_MAX_RETRIES
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
