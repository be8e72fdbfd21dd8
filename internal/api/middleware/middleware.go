// Package middleware provides the gin middleware of the HTTP API.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/api/dto"
	"mailflowAdmin/internal/observability/logging"
)

// Header names of the request identifiers.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
)

// Context keys under which the identifiers are stored on the gin context.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
)

// Correlation echoes the caller's correlation ID, or generates one, and always generates a
// request ID. Both are returned as response headers and attached to the request logger.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		requestID := uuid.NewString()

		c.Set(CorrelationIDKey, correlationID)
		c.Set(RequestIDKey, requestID)
		c.Header(HeaderCorrelationID, correlationID)
		c.Header(HeaderRequestID, requestID)

		logger := logging.WithFields(map[string]interface{}{
			CorrelationIDKey: correlationID,
			RequestIDKey:     requestID,
		})
		c.Request = c.Request.WithContext(logging.NewContext(c.Request.Context(), logger))

		c.Next()
	}
}

// Logging logs every request once it has been handled.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logging.FromContext(c.Request.Context()).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}).Info("HTTP request")
	}
}

// ErrorHandler turns the last error recorded by a handler into an ErrorResponse.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		status, code := StatusFor(err)
		logger := logging.FromContext(c.Request.Context()).WithError(err).WithFields(map[string]interface{}{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"code":   code,
		})
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed")
		} else {
			logger.Warn("Request rejected")
		}

		if c.Writer.Written() {
			return
		}
		message := err.Error()
		if status == http.StatusInternalServerError {
			message = "An internal error occurred"
		}
		c.JSON(status, dto.ErrorResponse{Error: message, Code: code})
	}
}

// StatusFor maps an error onto an HTTP status and an error code.
func StatusFor(err error) (int, string) {
	switch admin.Classify(err) {
	case admin.KindInvalidRequest, admin.KindNamingConvention, admin.KindTargetUndeterminable, admin.KindConfirmationMismatch:
		return http.StatusBadRequest, "BAD_REQUEST"
	case admin.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case admin.KindLeaseExpired:
		return http.StatusConflict, "LEASE_EXPIRED"
	case admin.KindPurgeInProgress:
		return http.StatusConflict, "PURGE_IN_PROGRESS"
	case admin.KindAccessDenied:
		return http.StatusForbidden, "FORBIDDEN"
	case admin.KindPublishFailed:
		return http.StatusBadGateway, "PUBLISH_FAILED"
	case admin.KindBrokerUnavailable:
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
