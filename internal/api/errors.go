package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidDay),
		errors.Is(err, domain.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateContent),
		errors.Is(err, domain.ErrAlreadyPosted),
		errors.Is(err, domain.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNoEligibleContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstreamFailure):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err as a JSON error body. Server-side failures are
// logged and their detail is not echoed to the client.
func handleError(c *gin.Context, err error, operation string) {
	status := statusFor(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			logger.String("operation", operation),
			logger.Error(err),
		)
		c.JSON(status, gin.H{"error": "Failed to " + operation})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
