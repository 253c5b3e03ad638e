package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AccessLog logs one line per request with the trace id of its span.
func AccessLog(logger *zap.Logger) echo.MiddlewareFunc {
	logger = logger.With(zap.String("module", "http"))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", c.RealIP()),
			}
			if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
				fields = append(fields, zap.String("traceId", sc.TraceID().String()))
			}
			if handlerErr, ok := c.Get("error").(error); ok {
				fields = append(fields, zap.Error(handlerErr))
			}

			switch status := c.Response().Status; {
			case status >= 500:
				logger.Error("request", fields...)
			case status >= 400:
				logger.Warn("request", fields...)
			default:
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}
