package httpgin

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/studio-booking/internal/repository"
	"github.com/kirinyoku/studio-booking/internal/service/admin"
	"github.com/kirinyoku/studio-booking/internal/service/catalog"
	"github.com/kirinyoku/studio-booking/internal/service/contact"
	"github.com/kirinyoku/studio-booking/internal/service/lifecycle"
	"github.com/kirinyoku/studio-booking/internal/service/registration"
)

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		regValidation     *registration.ValidationError
		adminValidation   *admin.ValidationError
		contactValidation *contact.ValidationError
		regCapacity       *registration.CapacityConflictError
		lifeCapacity      *lifecycle.CapacityConflictError
		regLimited        *registration.RateLimitedError
		contactLimited    *contact.RateLimitedError
	)

	switch {
	// invalid input
	case errors.As(err, &regValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Details: regValidation.Problems})
	case errors.As(err, &adminValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Details: adminValidation.Problems})
	case errors.As(err, &contactValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid input", Details: contactValidation.Problems})
	case errors.Is(err, lifecycle.ErrNothingToUpdate), errors.Is(err, admin.ErrNothingToUpdate):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "nothing to update"})

	// not found
	case errors.Is(err, catalog.ErrEditionNotFound), errors.Is(err, registration.ErrEditionNotFound),
		errors.Is(err, admin.ErrEditionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "edition not found"})
	case errors.Is(err, catalog.ErrEventNotFound), errors.Is(err, registration.ErrEventNotFound),
		errors.Is(err, admin.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, admin.ErrDateOptionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "date option not found"})
	case errors.Is(err, lifecycle.ErrRegistrationNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "registration not found"})

	// conflicts
	case errors.As(err, &regCapacity):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "some chosen dates are full", FullDates: regCapacity.UnitIDs})
	case errors.As(err, &lifeCapacity):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "some dates are full", FullDates: lifeCapacity.UnitIDs})
	case errors.Is(err, admin.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflicting data"})

	case errors.Is(err, catalog.ErrEventPast), errors.Is(err, registration.ErrEventPast):
		c.JSON(http.StatusGone, ErrorResponse{Error: "event has already taken place"})

	case errors.As(err, &regLimited):
		rateLimited(c, regLimited.RetryAfter)
	case errors.As(err, &contactLimited):
		rateLimited(c, contactLimited.RetryAfter)

	case errors.Is(err, lifecycle.ErrNotificationFailed):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "email could not be sent"})
	case errors.Is(err, repository.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "data backend unavailable"})
	case errors.Is(err, contact.ErrNotDelivered):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "message could not be sent, please retry"})

	case errors.Is(err, registration.ErrWriteFailed):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "registration could not be saved"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}

	if c.Writer.Status() >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
}

func rateLimited(c *gin.Context, retry time.Duration) {
	secs := int(math.Ceil(retry.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
}
