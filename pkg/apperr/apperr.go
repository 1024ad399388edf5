// Package apperr defines the coded error values shared by the service and
// HTTP layers. Every error carries a stable string code from the API error
// taxonomy, a human-readable message, and optional structured details that
// give clients enough context to recover (allowed transitions, WIP counts,
// current claim holder, cycle paths).
package apperr

import (
	"errors"
	"fmt"
)

// Error codes. Clients map unknown codes to API_ERROR.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeItemNotFound      = "ITEM_NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidStage      = "INVALID_STAGE"
	CodeWIPLimitExceeded  = "WIP_LIMIT_EXCEEDED"
	CodeDependencyCycle   = "DEPENDENCY_CYCLE"
	CodeOutputCollision   = "OUTPUT_COLLISION"
	CodeClaimConflict     = "CLAIM_CONFLICT"
	CodeClaimMismatch     = "CLAIM_MISMATCH"
	CodeNotClaimed        = "NOT_CLAIMED"
	CodeAgentBusy         = "AGENT_BUSY"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeDatabase          = "DATABASE_ERROR"
	CodeServer            = "SERVER_ERROR"
)

// Error is a tagged domain error.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a coded error without details.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured details and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == code
	}
	return false
}

// Validation creates a VALIDATION_ERROR naming the violated field.
func Validation(field, message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf("validation error on field '%s': %s", field, message),
		Details: map[string]any{"field": field},
	}
}

// EnumValidation creates a VALIDATION_ERROR listing the allowed values.
func EnumValidation(field, got string, allowed []string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf("validation error on field '%s': '%s' is not allowed", field, got),
		Details: map[string]any{"field": field, "got": got, "allowed": allowed},
	}
}

// Database wraps an unexpected persistence failure as DATABASE_ERROR. The
// underlying error text is kept in the message; callers log the original.
func Database(err error) *Error {
	return &Error{Code: CodeDatabase, Message: "database operation failed: " + err.Error()}
}

// Wrap passes coded errors through unchanged and converts anything else to
// DATABASE_ERROR. Service methods call it at their boundary so handlers only
// ever see coded errors.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Database(err)
}
