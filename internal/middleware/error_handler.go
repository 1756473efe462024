package middleware

import (
	"errors"
	"net/http"

	"budgetPilot/business/bandit"
	"budgetPilot/business/changequeue"
	"budgetPilot/business/decisionloop"
	"budgetPilot/business/patterns"
	"budgetPilot/pkg/logger"
	pkgotel "budgetPilot/pkg/otel"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var he *echo.HTTPError
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, changequeue.ErrNotFound),
		errors.Is(err, bandit.ErrArmNotFound),
		errors.Is(err, bandit.ErrUnknownVariant):
		return http.StatusNotFound
	case errors.Is(err, changequeue.ErrEntityBusy),
		errors.Is(err, changequeue.ErrNotCancellable),
		errors.Is(err, changequeue.ErrInvalidTransition),
		errors.Is(err, decisionloop.ErrCycleRunning):
		return http.StatusConflict
	case errors.Is(err, patterns.ErrEmptyVector),
		errors.Is(err, patterns.ErrInvalidVector),
		errors.Is(err, patterns.ErrDimensionMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorHandler is the echo HTTPErrorHandler for the API.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := StatusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}

	tid := pkgotel.TraceIDFromContext(c.Request().Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed",
			"trace_id", tid,
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		msg = http.StatusText(status)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, errorBody{Message: msg, TraceID: tid})
	}
	if werr != nil {
		logger.Error("error_response_write_failed", "error", werr)
	}
}
