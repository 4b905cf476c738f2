package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries
// structured payloads such as the list of missing prerequisite courses.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Registration and settlement failures. Every one of these rolls back the
// open transaction before it is returned; ErrSystem is the only catch-all.
var (
	ErrUnauthorized            = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden               = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrValidation              = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound                = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrStudentNotFound         = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student not found")
	ErrClassSectionNotFound    = New("CLASSSECTION_NOT_FOUND", http.StatusNotFound, "class section not found")
	ErrSemesterWindowClosed    = New("SEMESTER_WINDOW_CLOSED", http.StatusUnprocessableEntity, "registration window for this term has closed")
	ErrDuplicateEnrollment     = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already has an active enrollment for this course")
	ErrPrereqNotMet            = New("PREREQ_NOT_MET", http.StatusUnprocessableEntity, "prerequisite courses not completed")
	ErrCreditLimitExceeded     = New("CREDIT_LIMIT_EXCEEDED", http.StatusUnprocessableEntity, "registration would exceed the term credit limit")
	ErrTimeConflict            = New("TIME_CONFLICT", http.StatusConflict, "section schedule conflicts with an existing enrollment")
	ErrClassFull               = New("CLASS_FULL", http.StatusConflict, "class section has no remaining capacity")
	ErrWalletInsufficient      = New("WALLET_INSUFFICIENT", http.StatusPaymentRequired, "wallet balance is insufficient")
	ErrEnrollmentNotFound      = New("ENROLLMENT_NOT_FOUND", http.StatusNotFound, "enrollment not found")
	ErrEnrollmentStatusInvalid = New("ENROLLMENT_STATUS_INVALID", http.StatusConflict, "enrollment is not in a state that allows this action")
	ErrInvalidCredentials      = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount         = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrSystem                  = New("SYSTEM_ERROR", http.StatusInternalServerError, "internal server error")
)

// ErrCacheMiss signals a cache lookup found nothing; callers fall through to
// the database.
var ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrSystem.Code, ErrSystem.Status, ErrSystem.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying a structured payload.
func WithDetails(err *Error, details interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}

// Is reports whether err carries the same code as target. Predeclared errors
// are cloned before being returned to callers, so pointer identity is not
// enough for errors.Is.
func Is(err error, target *Error) bool {
	if target == nil {
		return err == nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
