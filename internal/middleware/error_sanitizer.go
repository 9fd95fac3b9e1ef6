package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorSanitizer writes JSON error responses. Client errors keep their message;
// server errors are logged in full and replaced with a generic message.
type ErrorSanitizer struct {
	logger *zap.Logger
}

// NewErrorSanitizer creates a new error sanitizer
func NewErrorSanitizer(logger *zap.Logger) *ErrorSanitizer {
	return &ErrorSanitizer{logger: logger}
}

// Respond logs err and writes the sanitized reply
func (es *ErrorSanitizer) Respond(w http.ResponseWriter, r *http.Request, err error, status int) {
	reqID := middleware.GetReqID(r.Context())
	message := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		es.logger.Error("Request failed",
			zap.Error(err),
			zap.Int("status_code", status),
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("request_id", reqID))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     message,
		Status:    status,
		RequestID: reqID,
	})
}
