package errors

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInvalidArgument represents null or blank required input
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	// ErrorTypeAlreadyExists represents a uniqueness violation
	ErrorTypeAlreadyExists ErrorType = "already_exists"
	// ErrorTypeNotFound represents an absent lookup or update target
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeUnsupported represents an operation not implemented by the store
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeQuery represents graph engine execution failures
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeAmbiguous represents a unique lookup that matched several nodes
	ErrorTypeAmbiguous ErrorType = "ambiguous"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// Is reports whether target is a BaseError of the same type, so the
// sentinels below match every error of their kind.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Sentinels for errors.Is checks
var (
	ErrInvalidArgument = NewBaseError(ErrorTypeInvalidArgument, "invalid argument", nil)
	ErrAlreadyExists   = NewBaseError(ErrorTypeAlreadyExists, "already exists", nil)
	ErrNotFound        = NewBaseError(ErrorTypeNotFound, "not found", nil)
	ErrUnsupported     = NewBaseError(ErrorTypeUnsupported, "unsupported", nil)
	ErrQuery           = NewBaseError(ErrorTypeQuery, "query failed", nil)
	ErrAmbiguous       = NewBaseError(ErrorTypeAmbiguous, "ambiguous", nil)
)

// ErrInvalidArgumentValue is returned when a required input is nil or blank
type ErrInvalidArgumentValue struct {
	*BaseError
	Field  string
	Reason string
}

func NewInvalidArgument(field, reason string) *ErrInvalidArgumentValue {
	return &ErrInvalidArgumentValue{
		BaseError: NewBaseError(ErrorTypeInvalidArgument, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrDuplicate is returned when a uniqueness check finds an existing node
type ErrDuplicate struct {
	*BaseError
	Field string
	Value string
}

func NewAlreadyExists(field, value string) *ErrDuplicate {
	return &ErrDuplicate{
		BaseError: NewBaseError(ErrorTypeAlreadyExists, fmt.Sprintf("%s already taken: %s", field, value), nil),
		Field:     field,
		Value:     value,
	}
}

// ErrEntityNotFound is returned when no node matches a lookup key
type ErrEntityNotFound struct {
	*BaseError
	Entity string
	Key    string
}

func NewNotFound(entity, key string) *ErrEntityNotFound {
	return &ErrEntityNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", entity, key), nil),
		Entity:    entity,
		Key:       key,
	}
}

// ErrOperationUnsupported is returned by contract operations the store does not provide
type ErrOperationUnsupported struct {
	*BaseError
	Operation string
}

func NewUnsupported(operation string) *ErrOperationUnsupported {
	return &ErrOperationUnsupported{
		BaseError: NewBaseError(ErrorTypeUnsupported, fmt.Sprintf("operation not supported: %s", operation), nil),
		Operation: operation,
	}
}

// ErrQueryFailed is returned when the graph engine rejects or fails a statement
type ErrQueryFailed struct {
	*BaseError
	Statement string
}

func NewQueryFailed(statement string, err error) *ErrQueryFailed {
	return &ErrQueryFailed{
		BaseError: NewBaseError(ErrorTypeQuery, fmt.Sprintf("statement failed: %s", statement), err),
		Statement: statement,
	}
}

// ErrAmbiguousMatch is returned when a lookup expected to be unique matched several nodes
type ErrAmbiguousMatch struct {
	*BaseError
	Entity  string
	Key     string
	Matches int
}

func NewAmbiguous(entity, key string, matches int) *ErrAmbiguousMatch {
	return &ErrAmbiguousMatch{
		BaseError: NewBaseError(ErrorTypeAmbiguous, fmt.Sprintf("%s lookup %s matched %d nodes", entity, key, matches), nil),
		Entity:    entity,
		Key:       key,
		Matches:   matches,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Helper functions

// TypeOf returns the ErrorType of the first BaseError in err's chain, or ""
func TypeOf(err error) ErrorType {
	var kinded interface{ Kind() ErrorType }
	if stderrors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

// IsRetryable reports whether the caller may retry the operation. Only
// query errors the driver classifies as transient qualify; the store itself
// never retries.
func IsRetryable(err error) bool {
	var queryErr *ErrQueryFailed
	if !stderrors.As(err, &queryErr) || queryErr.Err == nil {
		return false
	}
	return neo4j.IsRetryable(queryErr.Err)
}
