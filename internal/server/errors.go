package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	feldomain "github.com/programador11r-tec/zkt-sub000/internal/fel/domain"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/pricing"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	settlementdomain "github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
	ticketdomain "github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	voucherdomain "github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
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
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, feldomain.ErrNotConfigured),
		errors.Is(err, gatedomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: err.Error(),
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

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pricing.ErrInvalidMode),
		errors.Is(err, pricing.ErrInvalidCustomAmount),
		errors.Is(err, pricing.ErrHourlyRateNotSet),
		errors.Is(err, pricing.ErrMonthlyRateNotSet),
		errors.Is(err, pricing.ErrExitBeforeEntry),
		errors.Is(err, ratesdomain.ErrInvalidRate),
		errors.Is(err, settlementdomain.ErrInvalidReceptorNIT),
		errors.Is(err, ticketdomain.ErrAlreadyClosed),
		errors.Is(err, voucherdomain.ErrInvalidIssue):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, ticketdomain.ErrTicketExists),
		errors.Is(err, voucherdomain.ErrVoucherUnavailable),
		errors.Is(err, voucherdomain.ErrVoucherRaceLost),
		errors.Is(err, settlementdomain.ErrSettlementInProgress):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ticketdomain.ErrNotFound),
		errors.Is(err, voucherdomain.ErrNotFound),
		errors.Is(err, settlementdomain.ErrInvoiceNotFound),
		errors.Is(err, feldomain.ErrPDFNotFound),
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
	case "ticket_already_closed":
		return "ticket already closed"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog buckets request errors for structured logs.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation", validationErrorCode(err)
	case isConflictError(err):
		return "conflict", err.Error()
	case isNotFoundError(err):
		return "not_found", err.Error()
	default:
		return "internal", err.Error()
	}
}
