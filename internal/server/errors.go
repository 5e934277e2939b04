package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tracechain/internal/actor"
	"github.com/smallbiznis/tracechain/internal/errs"
)

const ledgerFailureMessage = "Transaction failed. Please check your connection and try again."

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	TxID    string            `json:"tx_id,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
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
	return errs.Invalid("request", ErrInvalidRequest.Error())
}

func mapError(err error) (int, errorPayload) {
	var (
		vErr    *errs.ValidationError
		aErr    *errs.AuthorizationError
		pErr    *errs.PersistenceError
		cErr    *errs.ConflictError
		nfErr   *errs.NotFoundError
		ledgErr *errs.LedgerSubmissionError
	)

	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	case errors.As(err, &vErr):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   vErr.Field,
				Code:    vErr.Code,
				Message: validationErrorMessage(vErr.Code),
			}},
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, actor.ErrMissingToken),
		errors.Is(err, actor.ErrInvalidToken):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.As(err, &aErr):
		message := "forbidden"
		if aErr.Reason != nil {
			message = aErr.Reason.Error()
		}
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: message}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.As(err, &nfErr), errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.As(err, &cErr):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: cErr.Error()}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, errs.ErrSequencerBusy):
		return http.StatusServiceUnavailable, errorPayload{Type: "sequencer_busy", Message: "another update is in progress, retry shortly"}
	case errors.As(err, &ledgErr):
		return http.StatusBadGateway, errorPayload{Type: "ledger_error", Message: ledgerFailureMessage}
	case errors.As(err, &pErr):
		return http.StatusInternalServerError, errorPayload{
			Type:    "persistence_error",
			Message: "update was confirmed on the ledger but could not be saved",
			TxID:    pErr.TxID,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{Type: "timeout", Message: "request timed out"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

// classifyErrorForLog returns the error type and code logged with a request.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func validationErrorMessage(code string) string {
	switch code {
	case "required":
		return "value is required"
	case "unknown":
		return "unknown value"
	case "too_long":
		return "value is too long"
	case "out_of_range":
		return "value is out of range"
	case "incomplete":
		return "latitude and longitude must be given together"
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
