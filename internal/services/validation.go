package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable error code
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
	sendError(w, ErrorResponse{Error: message}, statusCode, validationErr)
}

// SendLedgerError renders a ledger error with its status and stable code.
func SendLedgerError(w http.ResponseWriter, err error) {
	status, code := ClassifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError && code == "internal_error" {
		message = "An Internal Error Occurred"
	}
	sendError(w, ErrorResponse{Error: message, Code: code}, status, err)
}

func sendError(w http.ResponseWriter, resp ErrorResponse, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	var fieldErrs validator.ValidationErrors
	var ledgerErr *ValidationError
	switch {
	case errors.As(validationErr, &fieldErrs):
		resp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			resp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	case errors.As(validationErr, &ledgerErr):
		resp.Details = map[string]string{ledgerErr.Field: ledgerErr.Message}
	}

	json.NewEncoder(w).Encode(resp)
}
