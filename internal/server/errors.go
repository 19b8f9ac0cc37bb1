package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	creditsdomain "github.com/pulseform/pulseform/internal/credits/domain"
	jobsdomain "github.com/pulseform/pulseform/internal/jobs/domain"
	orchdomain "github.com/pulseform/pulseform/internal/orchestrator/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
	threaddomain "github.com/pulseform/pulseform/internal/thread/domain"
	tierdomain "github.com/pulseform/pulseform/internal/tier/domain"
	usagelogdomain "github.com/pulseform/pulseform/internal/usagelog/domain"
	"gorm.io/gorm"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors aggregates field-level problems into one error value.
type ValidationErrors struct {
	Items []ValidationError
}

func (e *ValidationErrors) Error() string {
	if e == nil || len(e.Items) == 0 {
		return "validation failed"
	}
	return e.Items[0].Message
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last error attached to the context when
// no handler has written a response yet.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last()
		if last == nil || last.Err == nil {
			return
		}
		status, payload := mapError(last.Err)
		c.JSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return &ValidationErrors{Items: []ValidationError{{
		Code:    "invalid_request",
		Message: "request body could not be parsed",
	}}}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation failed",
			Errors:  vErr.Items,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, creditsdomain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "insufficient_credits",
			Message: "not enough credits for this operation",
		}
	case isBadRequestError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, jobsdomain.ErrJobFinished):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "task already finished",
		}
	case errors.Is(err, orchdomain.ErrParseFailure),
		errors.Is(err, orchdomain.ErrSchemaViolation):
		// The model replied but not with usable JSON. The caller did nothing
		// wrong and retrying may succeed.
		return http.StatusBadGateway, errorPayload{
			Type:    "model_reply_unusable",
			Message: err.Error(),
		}
	case errors.Is(err, jobsdomain.ErrEnqueueTimeout),
		errors.Is(err, ErrServiceUnavailable):
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

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isBadRequestError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orchdomain.ErrInvalidInput),
		errors.Is(err, surveydomain.ErrInvalidDef),
		errors.Is(err, threaddomain.ErrInvalidScope),
		errors.Is(err, creditsdomain.ErrInvalidAmount),
		errors.Is(err, usagelogdomain.ErrInvalidOperation):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, surveydomain.ErrSurveyNotFound),
		errors.Is(err, surveydomain.ErrQuestionNotFound),
		errors.Is(err, jobsdomain.ErrJobNotFound),
		errors.Is(err, usagelogdomain.ErrLogNotFound),
		errors.Is(err, tierdomain.ErrTierNotFound),
		errors.Is(err, creditsdomain.ErrTenantNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog labels request-log lines without reusing the response
// mapping, which collapses detail.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isBadRequestError(err):
		return "validation", "invalid_request"
	case errors.Is(err, creditsdomain.ErrInsufficientCredits):
		return "credits", "insufficient_credits"
	case isNotFoundError(err):
		return "not_found", "not_found"
	case errors.Is(err, jobsdomain.ErrJobFinished):
		return "conflict", "task_finished"
	case errors.Is(err, orchdomain.ErrParseFailure):
		return "model", "parse_failure"
	case errors.Is(err, orchdomain.ErrSchemaViolation):
		return "model", "schema_violation"
	case errors.Is(err, jobsdomain.ErrEnqueueTimeout):
		return "queue", "enqueue_timeout"
	default:
		return "internal", "internal_error"
	}
}
