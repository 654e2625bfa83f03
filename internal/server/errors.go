package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	communicatordomain "github.com/smallbiznis/cashapp/internal/communicator/domain"
	erpdomain "github.com/smallbiznis/cashapp/internal/erp/domain"
	extractordomain "github.com/smallbiznis/cashapp/internal/extractor/domain"
	"github.com/smallbiznis/cashapp/internal/money"
	orchdomain "github.com/smallbiznis/cashapp/internal/orchestrator/domain"
	transactiondomain "github.com/smallbiznis/cashapp/internal/transaction/domain"
)

// ValidationError is one field-level failure reported in a 400 response.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ValidationErrors is returned by request-decoding helpers for malformed or
// incomplete request bodies (spec.md §7 ValidationError, rejected at ingress).
type ValidationErrors struct {
	Errors []ValidationError
}

func (v *ValidationErrors) Error() string { return "validation error" }

func invalidRequest(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

// ErrorHandlingMiddleware maps the last handler-recorded error to an HTTP
// status and JSON payload, the way the reviewed repo's middleware.go
// centralizes error-to-status translation instead of repeating it in every
// handler.
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

// AbortWithError records err on the gin context and stops further
// handlers; ErrorHandlingMiddleware translates it into the response.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError classifies a domain error into an HTTP status and payload
// (spec.md §7's error taxonomy, bound to the HTTP surface in spec.md §6).
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, transactiondomain.ErrInvalidAmount),
		errors.Is(err, transactiondomain.ErrInvalidTransaction),
		errors.Is(err, orchdomain.ErrInvalidTransaction),
		errors.Is(err, extractordomain.ErrUnknownTierPreference),
		errors.Is(err, communicatordomain.ErrMissingField),
		errors.Is(err, communicatordomain.ErrInvalidRecipient):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}

	case errors.Is(err, transactiondomain.ErrNotFound),
		errors.Is(err, orchdomain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}

	case errors.Is(err, communicatordomain.ErrTemplateNotFound):
		return http.StatusNotFound, errorPayload{Type: "template_not_found", Message: err.Error()}

	case errors.Is(err, orchdomain.ErrAlreadyTerminal):
		return http.StatusConflict, errorPayload{Type: "already_terminal", Message: err.Error()}

	case errors.Is(err, orchdomain.ErrBusy):
		return http.StatusServiceUnavailable, errorPayload{Type: "busy", Message: err.Error()}

	case errors.Is(err, extractordomain.ErrExtractorUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "extractor_unavailable", Message: err.Error()}

	case errors.Is(err, communicatordomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: err.Error()}

	case errors.Is(err, erpdomain.ErrProviderNotFound), errors.Is(err, erpdomain.ErrInvalidConfig):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	}

	var erpErr *erpdomain.Error
	if errors.As(err, &erpErr) {
		switch erpErr.Kind {
		case erpdomain.ErrKindDuplicatePayment:
			return http.StatusConflict, errorPayload{Type: "duplicate_payment", Message: erpErr.Error()}
		case erpdomain.ErrKindValidation:
			return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: erpErr.Error()}
		default:
			return http.StatusBadGateway, errorPayload{Type: "erp_error", Message: erpErr.Error()}
		}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}
