// Package logging 基于 zerolog 构建结构化日志。
//
// 日志只出现在训练任务、HTTP 层和服务编排中；推荐引擎本身不打日志。
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	log := logger.With().Str("component", "trainer").Logger()
//	log.Info().Int("books", n).Msg("catalog fetched")
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config 是日志配置
type Config struct {
	// Level: trace / debug / info / warn / error，默认 info
	Level string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`

	// Format: json / console，默认 json
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`

	// Caller 是否输出调用位置
	Caller bool `koanf:"caller"`

	// Output 默认 os.Stderr
	Output io.Writer `koanf:"-"`
}

// New 按配置创建 Logger
func New(cfg Config) (zerolog.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Caller {
		zctx = zctx.Caller()
	}
	return zctx.Logger(), nil
}

// Component 返回带 component 字段的子 Logger
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

type ctxKey int

const requestIDKey ctxKey = iota

// NewRequestID 生成请求 ID
func NewRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID 把请求 ID 放入 context
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext 读取请求 ID，不存在时返回空串
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx 返回带 request_id 字段（若存在）的 Logger
func Ctx(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return logger.With().Str("request_id", id).Logger()
	}
	return logger
}
