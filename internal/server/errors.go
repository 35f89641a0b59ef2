package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	mappingdomain "github.com/smallbiznis/formmetrics/internal/mapping/domain"
	populationdomain "github.com/smallbiznis/formmetrics/internal/population/domain"
	submissiondomain "github.com/smallbiznis/formmetrics/internal/submission/domain"
	taxonomydomain "github.com/smallbiznis/formmetrics/internal/taxonomy/domain"
	"github.com/smallbiznis/formmetrics/pkg/db"
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
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationErrors are matched in order; the first hit names the error code.
var validationErrors = []error{
	ErrInvalidRequest,

	populationdomain.ErrInvalidID,
	populationdomain.ErrInvalidPeriod,
	populationdomain.ErrInvalidPageToken,
	populationdomain.ErrInvalidRange,

	mappingdomain.ErrInvalidID,
	mappingdomain.ErrFieldNotFound,
	mappingdomain.ErrFieldInactive,
	mappingdomain.ErrMetricNotFound,
	mappingdomain.ErrMetricInactive,
	mappingdomain.ErrInvalidMappingType,
	mappingdomain.ErrInvalidAggregation,
	mappingdomain.ErrMissingFormula,
	mappingdomain.ErrInvalidFormula,
	mappingdomain.ErrAliasOutsideTemplate,
	mappingdomain.ErrMissingExpectedValue,

	taxonomydomain.ErrInvalidID,
	taxonomydomain.ErrUnitNotFound,
	taxonomydomain.ErrSubCategoryNotFound,
	taxonomydomain.ErrInvalidName,
	taxonomydomain.ErrInvalidCode,
	taxonomydomain.ErrInvalidDataType,
	taxonomydomain.ErrInvalidAggregation,
	taxonomydomain.ErrInvalidThresholds,
	taxonomydomain.ErrInvalidComplianceRule,
	taxonomydomain.ErrDataTypeNotAllowed,
	taxonomydomain.ErrAggregationNotAllowed,
	taxonomydomain.ErrInvalidFieldType,

	submissiondomain.ErrInvalidID,
}

var notFoundErrors = []error{
	ErrNotFound,
	populationdomain.ErrSubmissionNotFound,
	populationdomain.ErrValueNotFound,
	mappingdomain.ErrNotFound,
	taxonomydomain.ErrNotFound,
	submissiondomain.ErrNotFound,
	submissiondomain.ErrFieldNotFound,
	gorm.ErrRecordNotFound,
}

var conflictErrors = []error{
	ErrConflict,
	mappingdomain.ErrDuplicateMapping,
	taxonomydomain.ErrDuplicateCode,
}

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

	if sentinel := matchAny(err, validationErrors); sentinel != nil {
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(err, code),
				},
			},
		}
	}

	switch {
	case matchAny(err, conflictErrors) != nil, db.IsDuplicateKeyErr(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case matchAny(err, notFoundErrors) != nil:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded):
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

// classifyErrorForLog returns the error type and code written to request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func matchAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_id":
		return "id"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	if i := strings.Index(code, "_"); i > 0 {
		return code[:i]
	}
	return ""
}

// validationErrorMessage keeps the wrapped detail when the service added one.
func validationErrorMessage(err error, code string) string {
	msg := err.Error()
	if msg != code {
		return msg
	}
	if code == "invalid_request" {
		return "invalid request"
	}
	return "invalid value"
}
