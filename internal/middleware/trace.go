package middleware

import (
	"strconv"
	"time"

	"budgetPilot/pkg/logger"
	"budgetPilot/pkg/metrics"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
)

const HeaderRequestID = "X-Request-ID"

// Trace gives every request a trace id, a span and a latency sample.
func Trace() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			tid := req.Header.Get(HeaderRequestID)
			if tid == "" {
				tid = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, tid)

			ctx := pkgotel.WithTraceID(req.Context(), tid)
			ctx, span := pkgotel.StartSpan(ctx, "http "+req.Method+" "+c.Path(),
				attribute.String("http.method", req.Method),
				attribute.String("http.route", c.Path()),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the status before it is observed
				c.Error(err)
				pkgotel.RecordError(span, err)
			}

			status := c.Response().Status
			elapsed := time.Since(start)
			metrics.HTTPRequestDuration.
				WithLabelValues(req.Method, c.Path(), strconv.Itoa(status)).
				Observe(elapsed.Seconds())
			span.SetAttributes(attribute.Int("http.status_code", status))

			logger.Debug("http_request",
				"trace_id", tid,
				"method", req.Method,
				"path", c.Path(),
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
			)
			return nil
		}
	}
}
