package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/usecase"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error to its HTTP status and error code. The
// mapping is exhaustive over the typed rejections; anything unrecognized is a
// 500 without internal detail.
func writeError(w http.ResponseWriter, err error) int {
	var (
		authErr        *domain.AuthenticationError
		rateErr        *domain.RateLimitError
		quotaErr       *domain.QuotaExceededError
		validationErr  *domain.ValidationError
		unsupportedErr *domain.UnsupportedOperationError
		infraErr       *domain.InfrastructureError
	)

	switch {
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error:   "AUTHENTICATION_FAILED",
			Message: authErr.Reason,
		})
		return http.StatusUnauthorized

	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rateErr)))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:   "RATE_LIMIT_EXCEEDED",
			Message: rateErr.Error(),
			Details: map[string]any{
				"scope":    rateErr.Scope,
				"limit":    rateErr.Limit,
				"reset_at": rateErr.ResetAt,
			},
		})
		return http.StatusTooManyRequests

	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:   "QUOTA_EXCEEDED",
			Message: quotaErr.Error(),
			Details: map[string]any{
				"dimension":  string(quotaErr.Dimension),
				"current":    quotaErr.Current,
				"limit":      quotaErr.Limit,
				"attempted":  quotaErr.Attempted,
				"percentage": quotaErr.Percentage,
			},
		})
		return http.StatusForbidden

	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "VALIDATION_FAILED",
			Message: validationErr.Msg,
		})
		return http.StatusBadRequest

	case errors.As(err, &unsupportedErr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "UNSUPPORTED_OPERATION",
			Message: unsupportedErr.Error(),
		})
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:   "NOT_FOUND",
			Message: "resource not found",
		})
		return http.StatusNotFound

	case errors.Is(err, usecase.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error:   "INVALID_CREDENTIALS",
			Message: "invalid email or password",
		})
		return http.StatusUnauthorized

	case errors.As(err, &infraErr):
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error:   "UPSTREAM_FAILURE",
			Message: "a backing service is unavailable",
		})
		return http.StatusBadGateway

	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "INTERNAL_ERROR",
			Message: "internal server error",
		})
		return http.StatusInternalServerError
	}
}

// retryAfterSeconds rounds up so a client never retries before the window
// resets.
func retryAfterSeconds(e *domain.RateLimitError) int {
	secs := int(e.RetryAfter.Seconds())
	if e.RetryAfter > 0 && e.RetryAfter.Truncate(time.Second) != e.RetryAfter {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
