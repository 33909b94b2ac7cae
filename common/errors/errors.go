package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a class of failure
type ErrorCode string

const (
	// Business Errors
	ErrCodeUnauthorized              ErrorCode = "UNAUTHORIZED"
	ErrCodeBadRequest                ErrorCode = "BAD_REQUEST"
	ErrCodeProfileNotFound           ErrorCode = "PROFILE_NOT_FOUND"
	ErrCodeCourseNotFound            ErrorCode = "COURSE_NOT_FOUND"
	ErrCodePaymentNotFound           ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodePaymentVerificationFailed ErrorCode = "PAYMENT_VERIFICATION_FAILED"
	ErrCodeDuplicateRequest          ErrorCode = "DUPLICATE_REQUEST"

	// Technical Errors
	ErrCodeConfigurationError     ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeGatewayAuthError       ErrorCode = "GATEWAY_AUTH_ERROR"
	ErrCodeGatewaySessionError    ErrorCode = "GATEWAY_SESSION_ERROR"
	ErrCodeGatewayValidationError ErrorCode = "GATEWAY_VALIDATION_ERROR"
	ErrCodeDatabaseError          ErrorCode = "DATABASE_ERROR"
	ErrCodeSerializationError     ErrorCode = "SERIALIZATION_ERROR"
	ErrCodeUnknownError           ErrorCode = "UNKNOWN_ERROR"
)

// DomainError carries a code alongside the message and cause
type DomainError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// New creates a domain error
func New(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a domain error around an existing cause
func Wrap(code ErrorCode, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first DomainError in the chain
func CodeOf(err error) ErrorCode {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ErrCodeUnknownError
}

// Is reports whether err carries the given code
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Message returns the client-facing message of a domain error
func Message(err error) string {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "internal error"
}

// IsBusinessError reports errors caused by the caller or the payment outcome, not by infrastructure
func IsBusinessError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUnauthorized, ErrCodeBadRequest, ErrCodeProfileNotFound, ErrCodeCourseNotFound,
		ErrCodePaymentNotFound, ErrCodePaymentVerificationFailed, ErrCodeDuplicateRequest:
		return true
	}
	return false
}
