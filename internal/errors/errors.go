package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig         = "CONFIG"
	ErrConfigNotFound = "CONFIG_NOT_FOUND"
	ErrConfigEmpty    = "CONFIG_EMPTY"
	ErrConfigInvalid  = "CONFIG_INVALID"
	ErrSchema         = "SCHEMA"
	ErrExec           = "EXEC"
	ErrSpawn          = "SPAWN"
	ErrHistory        = "HISTORY"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrExec code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrExec,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
// Wrapped chains are searched, so the outermost matching code wins.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Code == code
	}
	return false
}

// As is errors.As re-exported so callers don't need both packages.
func As(err error, target any) bool {
	return errors.As(err, target)
}
