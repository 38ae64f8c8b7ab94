// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"

	"bogo/internal/pkg/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup 配置进程级 zerolog logger，只应在启动时调用一次。
// pretty 为 true 时使用控制台格式输出（本地调试、CLI）。
func Setup(serviceName, level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", serviceName).Logger()
	// context 中没有 logger 时，Ctx 回退到全局 logger
	zerolog.DefaultContextLogger = &log.Logger
}

// Ctx 返回 context 中的 logger，并附带当前 span 的 trace_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	traceID := tracing.GetTraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	withTrace := l.With().Str("trace_id", traceID).Logger()
	return &withTrace
}
