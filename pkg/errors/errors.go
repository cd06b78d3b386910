package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies supervisor errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict" // worker already running
	ErrorTypeInProgress ErrorType = "in_progress"
	ErrorTypeNotRunning ErrorType = "not_running"
	ErrorTypeSpawn      ErrorType = "spawn"
	ErrorTypeProbe      ErrorType = "probe"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeCancelled  ErrorType = "cancelled"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Reason renders the error for an operator: message plus the root cause, without the type prefix.
func (e *DomainError) Reason() string {
	if e.Cause == nil {
		return e.Message
	}
	var inner *DomainError
	if errors.As(e.Cause, &inner) {
		return e.Message + ": " + inner.Reason()
	}
	return e.Message + ": " + e.Cause.Error()
}

func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

func NewInProgressError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInProgress, message, cause)
}

func NewNotRunningError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotRunning, message, cause)
}

// Process lifecycle errors
func NewSpawnError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeSpawn, message, cause)
}

func NewProbeError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProbe, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

// System errors
func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNetworkError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNetwork, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// TypeOf returns the type of the outermost DomainError in the chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// ReasonOf is the operator-facing text for any error.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Reason()
	}
	return err.Error()
}

func IsValidationError(err error) bool { return TypeOf(err) == ErrorTypeValidation }
func IsNotFoundError(err error) bool   { return TypeOf(err) == ErrorTypeNotFound }
func IsConflictError(err error) bool   { return TypeOf(err) == ErrorTypeConflict }
func IsInProgressError(err error) bool { return TypeOf(err) == ErrorTypeInProgress }
func IsNotRunningError(err error) bool { return TypeOf(err) == ErrorTypeNotRunning }
func IsSpawnError(err error) bool      { return TypeOf(err) == ErrorTypeSpawn }
func IsProbeError(err error) bool      { return TypeOf(err) == ErrorTypeProbe }
func IsTimeoutError(err error) bool    { return TypeOf(err) == ErrorTypeTimeout }
func IsPermissionError(err error) bool { return TypeOf(err) == ErrorTypePermission }
func IsIOError(err error) bool         { return TypeOf(err) == ErrorTypeIO }
func IsNetworkError(err error) bool    { return TypeOf(err) == ErrorTypeNetwork }
func IsInternalError(err error) bool   { return TypeOf(err) == ErrorTypeInternal }
func IsCancelledError(err error) bool  { return TypeOf(err) == ErrorTypeCancelled }

// IsBenign reports state conflicts that are outcomes, not failures.
func IsBenign(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeConflict, ErrorTypeInProgress, ErrorTypeNotRunning:
		return true
	}
	return false
}

// ErrorCollection aggregates errors from bulk operations
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
