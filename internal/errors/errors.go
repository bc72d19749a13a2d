package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound           = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists      = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation         = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation   = new(ErrCodeInvalidOperation, "invalid operation")
	ErrStorageUnavailable = new(ErrCodeStorageUnavailable, "storage unavailable")
	ErrTemplateNotFound   = new(ErrCodeTemplateNotFound, "template not found")
	ErrInvalidAttachment  = new(ErrCodeInvalidAttachment, "invalid attachment")
	ErrRenderTimeout      = new(ErrCodeRenderTimeout, "render timeout")
	ErrMergeDegraded      = new(ErrCodeMergeDegraded, "merge degraded")
	ErrHTTPClient         = new(ErrCodeHTTPClient, "http client error")
	ErrSystem             = new(ErrCodeSystemError, "system error")

	// statusCodes maps sentinels to http status codes, most specific first.
	// An error can carry several marks and the first match wins.
	statusCodes = []struct {
		err    *InternalError
		status int
	}{
		{ErrRenderTimeout, http.StatusGatewayTimeout},
		{ErrInvalidAttachment, http.StatusBadRequest},
		{ErrTemplateNotFound, http.StatusInternalServerError},
		{ErrNotFound, http.StatusNotFound},
		{ErrAlreadyExists, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrInvalidOperation, http.StatusBadRequest},
		{ErrStorageUnavailable, http.StatusInternalServerError},
		{ErrHTTPClient, http.StatusInternalServerError},
		{ErrSystem, http.StatusInternalServerError},
	}
)

const (
	ErrCodeHTTPClient         = "http_client_error"
	ErrCodeSystemError        = "system_error"
	ErrCodeNotFound           = "not_found"
	ErrCodeAlreadyExists      = "already_exists"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidOperation   = "invalid_operation"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeTemplateNotFound   = "template_not_found"
	ErrCodeInvalidAttachment  = "invalid_attachment"
	ErrCodeRenderTimeout      = "render_timeout"
	ErrCodeMergeDegraded      = "merge_degraded"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// New creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorageUnavailable checks if durable I/O failed
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsTemplateNotFound checks if a template lookup failed
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsInvalidAttachment checks if a caller supplied attachment was rejected
func IsInvalidAttachment(err error) bool {
	return errors.Is(err, ErrInvalidAttachment)
}

// IsRenderTimeout checks if an engine run exceeded its time bound
func IsRenderTimeout(err error) bool {
	return errors.Is(err, ErrRenderTimeout)
}

// IsMergeDegraded checks if an error describes a non-fatal merge fallback
func IsMergeDegraded(err error) bool {
	return errors.Is(err, ErrMergeDegraded)
}

func HTTPStatusFromErr(err error) int {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.status
		}
	}
	return http.StatusInternalServerError
}

// CodeFromErr returns the machine readable code of the most specific
// sentinel err is marked with
func CodeFromErr(err error) string {
	for _, sc := range statusCodes {
		if errors.Is(err, sc.err) {
			return sc.err.Code
		}
	}
	return ErrCodeSystemError
}
