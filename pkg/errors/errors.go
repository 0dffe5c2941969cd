// Package errors provides a structured error system for sheetsync with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for sheetsync operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig     ErrorCode = "CONFIG_INVALID"
	ErrCodeMissingEndpoint   ErrorCode = "CONFIG_MISSING_ENDPOINT"
	ErrCodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	ErrCodeUnknownCollection ErrorCode = "CONFIG_UNKNOWN_COLLECTION"

	// Remote provider errors
	ErrCodeOperationTimeout ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeNetworkError     ErrorCode = "NETWORK_ERROR"
	ErrCodeRemoteError      ErrorCode = "REMOTE_ERROR"
	ErrCodeParseError       ErrorCode = "PARSE_ERROR"
	ErrCodeRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"

	// Cache and snapshot errors
	ErrCodeSnapshotLoad ErrorCode = "SNAPSHOT_LOAD"
	ErrCodeSnapshotSave ErrorCode = "SNAPSHOT_SAVE"

	// State management errors
	ErrCodeAlreadyStarted ErrorCode = "ALREADY_STARTED"
	ErrCodeNotStarted     ErrorCode = "NOT_STARTED"
	ErrCodeQueueClosed    ErrorCode = "QUEUE_CLOSED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryRemote        ErrorCategory = "remote"
	CategoryCache         ErrorCategory = "cache"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// SyncError represents a structured error with context and metadata.
type SyncError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component  string `json:"component,omitempty"`
	Operation  string `json:"operation,omitempty"`
	Collection string `json:"collection,omitempty"`

	// Error handling hints
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *SyncError) Is(target error) bool {
	if syncErr, ok := target.(*SyncError); ok {
		return e.Code == syncErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *SyncError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Collection != "" {
		parts = append(parts, fmt.Sprintf("Collection=%s", e.Collection))
	}

	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("SyncError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *SyncError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new sheetsync error with default values.
func NewError(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "OPERATION_") || strings.HasPrefix(codeStr, "NETWORK_") ||
		strings.HasPrefix(codeStr, "REMOTE_") || strings.HasPrefix(codeStr, "PARSE_") ||
		strings.HasPrefix(codeStr, "RETRY_"):
		return CategoryRemote
	case strings.HasPrefix(codeStr, "SNAPSHOT_"):
		return CategoryCache
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "NOT_") ||
		strings.HasPrefix(codeStr, "QUEUE_"):
		return CategoryState
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
// Configuration errors are never retried; remote call failures are.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeOperationTimeout: true,
		ErrCodeNetworkError:     true,
		ErrCodeRemoteError:      true,
		ErrCodeParseError:       true,
	}
	return retryableCodes[code]
}

// WithContext adds contextual information to an error
func (e *SyncError) WithContext(key, value string) *SyncError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *SyncError) WithComponent(component string) *SyncError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *SyncError) WithOperation(operation string) *SyncError {
	e.Operation = operation
	return e
}

// WithCollection sets the collection the error relates to
func (e *SyncError) WithCollection(collection string) *SyncError {
	e.Collection = collection
	return e
}

// WithCause sets the underlying cause
func (e *SyncError) WithCause(cause error) *SyncError {
	e.Cause = cause
	return e
}

// WithRetryable overrides the retryable hint
func (e *SyncError) WithRetryable(retryable bool) *SyncError {
	e.Retryable = retryable
	return e
}

// CodeOf extracts the error code from any error, returning ErrCodeInternalError
// for errors that did not originate in this package.
func CodeOf(err error) ErrorCode {
	var syncErr *SyncError
	if stderrors.As(err, &syncErr) {
		return syncErr.Code
	}
	return ErrCodeInternalError
}
