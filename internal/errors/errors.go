package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Common error codes
const (
	// Client errors (4xx)
	CodeValidationError = "VALIDATION_ERROR"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeConfiguration   = "CONFIGURATION_ERROR"

	// Authentication specific
	CodeInvalidToken = "INVALID_TOKEN"
	CodeTokenExpired = "TOKEN_EXPIRED"

	// Collection run errors
	CodeTabCreation     = "TAB_CREATION_ERROR"
	CodeLoadTimeout     = "LOAD_TIMEOUT"
	CodeElementNotFound = "ELEMENT_NOT_FOUND"
	CodeDownloadTimeout = "DOWNLOAD_TIMEOUT"
	CodeFormat          = "FORMAT_ERROR"
	CodeExtraction      = "EXTRACTION_ERROR"
	CodeUpload          = "UPLOAD_ERROR"

	// Server errors (5xx)
	CodeInternalError = "INTERNAL_ERROR"
	CodeStorage       = "STORAGE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Client error constructors

func BadRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, CategoryClient, http.StatusBadRequest)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message, CategoryClient, http.StatusBadRequest)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, CategoryClient, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, CategoryClient, http.StatusUnauthorized)
}

func TokenExpired() *AppError {
	return New(CodeTokenExpired, "token has expired", CategoryClient, http.StatusUnauthorized)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

func Configuration(message string) *AppError {
	return New(CodeConfiguration, message, CategoryClient, http.StatusUnprocessableEntity)
}

// Collection run error constructors

func TabCreation(url string) *AppError {
	return New(CodeTabCreation, "failed to open page", CategoryExternal, http.StatusBadGateway).
		WithDetails(map[string]any{"url": url})
}

func LoadTimeout(url string) *AppError {
	return New(CodeLoadTimeout, "page did not finish loading in time", CategoryExternal, http.StatusGatewayTimeout).
		WithDetails(map[string]any{"url": url})
}

func ElementNotFound(descriptor string) *AppError {
	return New(CodeElementNotFound, "control not found on page", CategoryExternal, http.StatusBadGateway).
		WithDetails(map[string]any{"selector": descriptor})
}

func DownloadTimeout(pattern string) *AppError {
	return New(CodeDownloadTimeout, "no matching download observed in time", CategoryExternal, http.StatusGatewayTimeout).
		WithDetails(map[string]any{"pattern": pattern})
}

func Format(message string) *AppError {
	return New(CodeFormat, message, CategoryExternal, http.StatusBadGateway)
}

func Extraction(url string) *AppError {
	return New(CodeExtraction, "url does not match any known post shape", CategoryExternal, http.StatusBadGateway).
		WithDetails(map[string]any{"url": url})
}

func Upload(message string) *AppError {
	return New(CodeUpload, message, CategoryExternal, http.StatusBadGateway)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

func Storage(message string) *AppError {
	return New(CodeStorage, message, CategoryServer, http.StatusInternalServerError)
}

// FromError returns err as an AppError, wrapping unknown errors as internal.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return InternalError("an unexpected error occurred").WithCause(err)
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	appErr := FromError(err)

	resp := ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
			Details:   appErr.Details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsClientError returns true if the error is a client error
func IsClientError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryClient
}

// IsExternalError returns true if the error is an external service error
func IsExternalError(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Category == CategoryExternal
}
