package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/classifier"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/retry"
	"github.com/pbaille/notes/internal/store"
	"github.com/pbaille/notes/internal/validate"
	"github.com/pbaille/notes/internal/workflow"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

var errBadID = errors.New("invalid id")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, validate.ErrInvalid),
		errors.Is(err, workflow.ErrInvalidCategory),
		errors.Is(err, errBadID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, store.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, classifier.ErrTransport),
		errors.Is(err, classifier.ErrInvalidResponse):
		return http.StatusBadGateway
	case errors.Is(err, retry.ErrCanceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// handleError writes err as a JSON ErrorResponse. Server-side failures are
// logged at error level, client errors at debug.
func (s *Server) handleError(c echo.Context, err error, message string) error {
	code := statusFor(err)
	ctx := c.Request().Context()
	resp := ErrorResponse{
		Error:   err.Error(),
		Message: message,
		Code:    code,
	}
	resp.RequestID, _ = logger.GetRequestID(ctx)

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("code", code),
		zap.String("path", c.Request().URL.Path),
		zap.String("method", c.Request().Method),
	}
	if code >= http.StatusInternalServerError {
		logger.Log(ctx).Error(ctx, message, fields...)
	} else {
		logger.Log(ctx).Debug(ctx, message, fields...)
	}
	return c.JSON(code, resp)
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, errBadID
	}
	return id, nil
}

// queryInt returns the named query parameter, or def when absent or not a
// positive integer.
func queryInt(c echo.Context, name string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func queryInt64(c echo.Context, name string) int64 {
	v, err := strconv.ParseInt(c.QueryParam(name), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
