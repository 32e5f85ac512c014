package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const slogLoggerKey = "slogLogger"

// SlogLoggerMiddleware 给每个请求派生一个带关联 ID 的 slog.Logger，
// 处理器经 LoggerFromContext 取用；结束后按状态码分级记一条访问日志。
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		reqLogger := logger.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", route),
		)
		c.Set(slogLoggerKey, reqLogger)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			reqLogger.Error("request failed", attrs...)
		} else {
			reqLogger.Info("request completed", attrs...)
		}
	}
}

// LoggerFromContext 返回请求作用域的 logger，取不到时退回进程默认。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if logger, ok := c.Value(slogLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
