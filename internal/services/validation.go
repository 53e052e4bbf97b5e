package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the JSON error envelope used by every handler
type ErrorResponse struct {
	Error   string            `json:"error"`             // Human-readable message
	Code    string            `json:"code,omitempty"`    // Machine code for typed domain errors
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErr.(validator.ValidationErrors) {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// decodeAndValidate reads a single JSON object into req and validates it,
// writing the error response itself when the request is bad.
func decodeAndValidate(vh *ValidationHelper, w http.ResponseWriter, r *http.Request, req any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// SendDomainError renders a typed domain error with its mapped status, or a
// generic 500 for unexpected store failures so internals never leak.
func SendDomainError(w http.ResponseWriter, err error, fallback string) {
	if de, ok := AsDomainError(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus(de.Code))
		json.NewEncoder(w).Encode(ErrorResponse{Error: de.Message, Code: de.Code})
		return
	}

	log.Printf("[ERROR] %s: %v", fallback, err)
	SendErrorResponse(w, fallback, http.StatusInternalServerError, nil)
}
