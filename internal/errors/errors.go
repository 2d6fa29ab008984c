package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the type of error
type ErrorType uint

const (
	// Error types
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeValidation
	ErrorTypeAuthentication
	ErrorTypeAuthorization
	ErrorTypeNotRegistered
	ErrorTypeAlreadyRegistered
	ErrorTypeRegistration
	ErrorTypeLinkGeneration
	ErrorTypeSync
	ErrorTypeStorage
	ErrorTypeRateLimit
)

// Error represents a custom error with additional context
type Error struct {
	Type       ErrorType
	Message    string
	Details    map[string]interface{}
	Err        error
	StatusCode int
	ErrorCode  string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new custom error
func NewError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Err:        err,
		StatusCode: errorTypeToStatusCode(errType),
		ErrorCode:  errorTypeToCode(errType),
		Details:    make(map[string]interface{}),
	}
}

// WithDetails adds context details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Is implements error comparison
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsType reports whether err is (or wraps) an *Error of the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Common error constructors
func NewValidationError(message string, err error) *Error {
	return NewError(ErrorTypeValidation, message, err)
}

func NewAuthenticationError(message string, err error) *Error {
	return NewError(ErrorTypeAuthentication, message, err)
}

func NewAuthorizationError(message string, err error) *Error {
	return NewError(ErrorTypeAuthorization, message, err)
}

// Domain-specific error constructors

// NewNotRegisteredError indicates no provider secret is stored for the user.
func NewNotRegisteredError(userID string) *Error {
	return NewError(
		ErrorTypeNotRegistered,
		"user not registered with aggregation provider",
		nil,
	).WithDetails(map[string]interface{}{
		"user_id": userID,
	})
}

// NewAlreadyRegisteredError indicates the provider reported a userId
// collision during registration. Recoverable; see the registrar.
func NewAlreadyRegisteredError(userID string, err error) *Error {
	return NewError(
		ErrorTypeAlreadyRegistered,
		fmt.Sprintf("user %s already registered with provider", userID),
		err,
	).WithDetails(map[string]interface{}{
		"user_id": userID,
	})
}

func NewRegistrationError(detail string, err error) *Error {
	return NewError(
		ErrorTypeRegistration,
		fmt.Sprintf("failed to register user: %s", detail),
		err,
	)
}

func NewLinkGenerationError(detail string, err error) *Error {
	return NewError(
		ErrorTypeLinkGeneration,
		fmt.Sprintf("failed to generate connection link: %s", detail),
		err,
	)
}

func NewSyncError(detail string, err error) *Error {
	return NewError(
		ErrorTypeSync,
		fmt.Sprintf("synchronization failed: %s", detail),
		err,
	)
}

func NewStorageError(operation string, err error) *Error {
	return NewError(
		ErrorTypeStorage,
		fmt.Sprintf("database operation failed: %s", operation),
		err,
	).WithDetails(map[string]interface{}{
		"operation": operation,
	})
}

// Helper functions
func errorTypeToStatusCode(errType ErrorType) int {
	switch errType {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeAuthorization:
		return http.StatusForbidden
	case ErrorTypeNotRegistered:
		return http.StatusNotFound
	case ErrorTypeAlreadyRegistered:
		return http.StatusConflict
	case ErrorTypeRegistration, ErrorTypeLinkGeneration, ErrorTypeSync:
		return http.StatusBadGateway
	case ErrorTypeStorage:
		return http.StatusInternalServerError
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorTypeToCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeAuthentication:
		return "AUTHENTICATION_ERROR"
	case ErrorTypeAuthorization:
		return "AUTHORIZATION_ERROR"
	case ErrorTypeNotRegistered:
		return "NOT_REGISTERED"
	case ErrorTypeAlreadyRegistered:
		return "ALREADY_REGISTERED"
	case ErrorTypeRegistration:
		return "REGISTRATION_ERROR"
	case ErrorTypeLinkGeneration:
		return "LINK_GENERATION_ERROR"
	case ErrorTypeSync:
		return "SYNC_ERROR"
	case ErrorTypeStorage:
		return "STORAGE_ERROR"
	case ErrorTypeRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Error Response structure for API responses
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// NewErrorResponse creates an error response from an Error
func NewErrorResponse(err *Error, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Status:    "error",
		ErrorCode: err.ErrorCode,
		Message:   err.Message,
		Details:   err.Details,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
