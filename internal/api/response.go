package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Error codes.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnsupported       = "UNSUPPORTED"
	CodeClusteringFailed  = "CLUSTERING_FAILED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternal          = "INTERNAL_ERROR"
)

func newMeta(r *http.Request, total int) *APIMeta {
	meta := &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if r != nil {
		meta.RequestID = logging.GetRequestID(r.Context())
	}
	return meta
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}

func respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, APIResponse{Success: true, Data: data, Meta: newMeta(r, 0)})
}

func respondList(w http.ResponseWriter, r *http.Request, data any, total int) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Meta: newMeta(r, total)})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    newMeta(r, 0),
	})
}

// respondErr maps the error taxonomy onto HTTP statuses.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, errors.ErrUnsupported):
		respondError(w, r, http.StatusBadRequest, CodeUnsupported, err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, r, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, errors.ErrClustering):
		respondError(w, r, http.StatusInternalServerError, CodeClusteringFailed, err.Error())
	default:
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
