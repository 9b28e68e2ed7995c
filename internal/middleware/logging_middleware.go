package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/microblock/internal/logging"
)

// TraceIDKey ключ trace-ID в gin.Context
const TraceIDKey = "trace_id"

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
// Запросы пишутся на уровне Debug, ответы с ошибкой на уровне Warn.
type RequestLogger struct {
	logger *logging.Logger
}

// NewRequestLogger создаёт middleware; logger == nil означает глобальный логгер
func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

func (rl *RequestLogger) logf(level logging.LogLevel, format string, args ...interface{}) {
	switch {
	case rl.logger != nil && level >= logging.WARN:
		rl.logger.Warn(format, args...)
	case rl.logger != nil:
		rl.logger.Debug(format, args...)
	case level >= logging.WARN:
		logging.Warn(format, args...)
	default:
		logging.Debug(format, args...)
	}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пытаемся извлечь trace-id из OpenTelemetry, если уже создан.
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set(TraceIDKey, traceID)
		c.Header("X-Trace-Id", traceID)

		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		clientIP := c.ClientIP()

		rl.logf(logging.DEBUG, "[HTTP] ▶ %s %s ip=%s trace=%s", method, path, clientIP, traceID)

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		level := logging.DEBUG
		if status >= 400 {
			level = logging.WARN
		}
		rl.logf(level, "[HTTP] ◀ %s %s %d %s trace=%s", method, path, status, latency, traceID)
	}
}
