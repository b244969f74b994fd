package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log 全局日志实例，未初始化时为 Nop，测试中可直接使用
var Log = zap.NewNop()

// Options 日志配置
type Options struct {
	FilePath   string
	Level      string
	Production bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init 初始化日志：文件 (lumberjack 滚动, JSON) + 控制台
func Init(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var consoleEncoder zapcore.Encoder
	if opts.Production {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    withDefault(opts.MaxSizeMB, 50),
			MaxBackups: withDefault(opts.MaxBackups, 5),
			MaxAge:     withDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	zap.ReplaceGlobals(Log)
	return Log
}

// Sync 刷新缓冲
func Sync() {
	_ = Log.Sync()
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type traceKey struct{}

// WithTraceID 把追踪ID放进 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID 取出追踪ID，没有时为空串
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// FromContext 带 trace_id 字段的日志实例
func FromContext(ctx context.Context) *zap.Logger {
	if id := TraceID(ctx); id != "" {
		return Log.With(zap.String("trace_id", id))
	}
	return Log
}
