package web

import (
	"errors"
	"log/slog"
	"net/http"

	"casanexus/internal/logger"
	"casanexus/internal/validator"
)

// ErrorResponse writes {"error": message} with the given status.
func ErrorResponse(w http.ResponseWriter, r *http.Request, log *slog.Logger, status int, message any) {
	if err := WriteJSON(w, status, Envelope{"error": message}, nil); err != nil {
		logger.FromContext(r.Context(), log).Error("write error response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// ServerError logs err and sends a generic 500.
func ServerError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	logger.FromContext(r.Context(), log).Error(err.Error(),
		"request_method", r.Method,
		"request_url", r.URL.String(),
	)
	ErrorResponse(w, r, log, http.StatusInternalServerError,
		"the server encountered a problem and could not process your request")
}

// NotFound sends a 404.
func NotFound(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	ErrorResponse(w, r, log, http.StatusNotFound, "the requested resource could not be found")
}

// MethodNotAllowed sends a 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	ErrorResponse(w, r, log, http.StatusMethodNotAllowed,
		"the "+r.Method+" method is not supported for this resource")
}

// BadRequest sends a 400 with err's message.
func BadRequest(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	ErrorResponse(w, r, log, http.StatusBadRequest, err.Error())
}

// Conflict sends a 409 with err's message.
func Conflict(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	ErrorResponse(w, r, log, http.StatusConflict, err.Error())
}

// FailedValidation sends a 422 with the field map.
func FailedValidation(w http.ResponseWriter, r *http.Request, log *slog.Logger, fields map[string]string) {
	ErrorResponse(w, r, log, http.StatusUnprocessableEntity, fields)
}

// RateLimitExceeded sends a 429.
func RateLimitExceeded(w http.ResponseWriter, r *http.Request, log *slog.Logger) {
	ErrorResponse(w, r, log, http.StatusTooManyRequests, "rate limit exceeded")
}

// ValidationError reports whether err carries field failures and, if so,
// writes the 422.
func ValidationError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) bool {
	var verr *validator.Error
	if !errors.As(err, &verr) {
		return false
	}
	FailedValidation(w, r, log, verr.Fields)
	return true
}
