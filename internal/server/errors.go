package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingconfigdomain "github.com/smallbiznis/tirta/internal/billingconfig/domain"
	execdomain "github.com/smallbiznis/tirta/internal/billingexecution/domain"
	"github.com/smallbiznis/tirta/internal/executor"
	invoicedomain "github.com/smallbiznis/tirta/internal/invoice/domain"
	tariffdomain "github.com/smallbiznis/tirta/internal/tariff/domain"
	"github.com/smallbiznis/tirta/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, executor.ErrExecutionInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "execution_in_progress",
			Message: "an execution for this billing config is already running",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, billingconfigdomain.ErrCodeExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code the request logger
// attaches to failed requests.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, "internal_error"
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, executor.ErrInvalidConfig):
		return true
	case isBillingConfigValidationError(err),
		isExecutionValidationError(err),
		isTariffValidationError(err),
		errors.Is(err, invoicedomain.ErrInvalidID):
		return true
	default:
		return false
	}
}

func isBillingConfigValidationError(err error) bool {
	switch err {
	case billingconfigdomain.ErrInvalidName,
		billingconfigdomain.ErrInvalidCode,
		billingconfigdomain.ErrInvalidCycle,
		billingconfigdomain.ErrInvalidDay,
		billingconfigdomain.ErrInvalidHour,
		billingconfigdomain.ErrInvalidMinute,
		billingconfigdomain.ErrInvalidTimezone,
		billingconfigdomain.ErrInvalidCategory,
		billingconfigdomain.ErrInvalidStatus,
		billingconfigdomain.ErrInvalidMaxRetries,
		billingconfigdomain.ErrInvalidEmail,
		billingconfigdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}

func isExecutionValidationError(err error) bool {
	switch err {
	case execdomain.ErrInvalidConfig,
		execdomain.ErrInvalidPageToken,
		execdomain.ErrInvalidID:
		return true
	default:
		return false
	}
}

func isTariffValidationError(err error) bool {
	switch err {
	case tariffdomain.ErrInvalidID,
		tariffdomain.ErrInvalidCategory,
		tariffdomain.ErrInvalidName,
		tariffdomain.ErrInvalidCharge:
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingconfigdomain.ErrNotFound),
		errors.Is(err, execdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, tariffdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_config":
		return "billing config is inactive or does not exist"
	default:
		return "invalid value"
	}
}
