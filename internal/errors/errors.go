package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a logbook error code.
type ErrorCode string

const (
	ErrValidation       ErrorCode = "VALIDATION_ERROR"  // 422
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrCodec            ErrorCode = "CODEC_ERROR"       // 422
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE" // 503
	ErrUploadFailed     ErrorCode = "UPLOAD_FAILED"     // 502
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// LogError represents a structured error with code, status, and details.
type LogError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *LogError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *LogError) Unwrap() error {
	return e.cause
}

// NewValidation creates a 422 error for a record that cannot be logged.
func NewValidation(msg string) *LogError {
	return &LogError{
		Code:    ErrValidation,
		Status:  422,
		Message: msg,
	}
}

// NewMissingFields creates a 422 error listing the required fields that are empty.
func NewMissingFields(missing []string) *LogError {
	return &LogError{
		Code:    ErrValidation,
		Status:  422,
		Message: fmt.Sprintf("record missing required fields: %v", missing),
		Details: map[string]any{"missing_fields": missing},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *LogError {
	return &LogError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a contact cannot be found.
func NewNotFound(id int64) *LogError {
	return &LogError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("contact not found: %d", id),
		Details: map[string]any{"id": id},
	}
}

// NewFileNotFound creates a 404 error for when an import file does not exist.
func NewFileNotFound(path string) *LogError {
	return &LogError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewIDNotGreater creates a 409 error for a create whose id does not extend the log.
func NewIDNotGreater(id, lastID int64) *LogError {
	return &LogError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("id %d must be greater than last id %d", id, lastID),
		Details: map[string]any{"id": id, "last_id": lastID},
	}
}

// NewCodec creates a 422 error for malformed interchange text.
// offset is the byte position in the input where the problem was detected.
func NewCodec(offset int, msg string) *LogError {
	return &LogError{
		Code:    ErrCodec,
		Status:  422,
		Message: fmt.Sprintf("%s at byte %d", msg, offset),
		Details: map[string]any{"offset": offset},
	}
}

// NewStoreUnavailable creates a 503 error when the backing store cannot be used.
func NewStoreUnavailable(err error) *LogError {
	msg := "store unavailable"
	if err != nil {
		msg = "store unavailable: " + err.Error()
	}
	return &LogError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewUploadFailed creates a 502 error for a collaborator (QRZ, LoTW) failure.
func NewUploadFailed(service, reason string) *LogError {
	return NewRemoteFailed(service, "upload", reason)
}

// NewRemoteFailed creates a 502 error for any failed call to a remote service.
func NewRemoteFailed(service, action, reason string) *LogError {
	return &LogError{
		Code:    ErrUploadFailed,
		Status:  502,
		Message: fmt.Sprintf("%s %s failed: %s", service, action, reason),
		Details: map[string]any{"service": service, "action": action, "reason": reason},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *LogError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &LogError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// WithDetail returns e with key set in its details map.
func (e *LogError) WithDetail(key string, value any) *LogError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Is checks if an error (or anything it wraps) is a LogError with the given code.
func Is(err error, code ErrorCode) bool {
	var lErr *LogError
	if stderrors.As(err, &lErr) {
		return lErr.Code == code
	}
	return false
}

// As is errors.As re-exported so callers importing this package need not alias the stdlib.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
