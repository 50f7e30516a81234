// Package errors provides the structured error type shared by the sandbox
// filesystem, configuration loading and the preview server.
//
// Filesystem failures carry one of five codes (FileNotFound, FileExists,
// FileIsADirectory, FileNotADirectory, NoPermissions). Callers compare with
// errors.Is against the exported sentinels, which match on Type and Code only,
// so path and message details never affect comparisons.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeFileSystem ErrorType = "filesystem"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Code identifies a specific failure within an ErrorType.
type Code string

const (
	CodeFileNotFound      Code = "FileNotFound"
	CodeFileExists        Code = "FileExists"
	CodeFileIsADirectory  Code = "FileIsADirectory"
	CodeFileNotADirectory Code = "FileNotADirectory"
	CodeNoPermissions     Code = "NoPermissions"
)

// Sentinels for errors.Is comparisons.
var (
	ErrFileNotFound      = &Error{Type: ErrorTypeFileSystem, Code: CodeFileNotFound}
	ErrFileExists        = &Error{Type: ErrorTypeFileSystem, Code: CodeFileExists}
	ErrFileIsADirectory  = &Error{Type: ErrorTypeFileSystem, Code: CodeFileIsADirectory}
	ErrFileNotADirectory = &Error{Type: ErrorTypeFileSystem, Code: CodeFileNotADirectory}
	ErrNoPermissions     = &Error{Type: ErrorTypeFileSystem, Code: CodeNoPermissions}
)

// Error is a structured error type with context.
type Error struct {
	Type    ErrorType
	Code    Code
	Message string
	Path    string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Path != "" {
		parts = append(parts, e.Path)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

func newFileSystemError(code Code, message, path string) *Error {
	return &Error{
		Type:    ErrorTypeFileSystem,
		Code:    code,
		Message: message,
		Path:    path,
	}
}

// FileNotFound reports a missing path or a missing ancestor.
func FileNotFound(path string) *Error {
	return newFileSystemError(CodeFileNotFound, "file not found", path)
}

// FileExists reports a create or rename collision.
func FileExists(path string) *Error {
	return newFileSystemError(CodeFileExists, "file exists", path)
}

// FileIsADirectory reports a file operation on a directory.
func FileIsADirectory(path string) *Error {
	return newFileSystemError(CodeFileIsADirectory, "file is a directory", path)
}

// FileNotADirectory reports a directory operation on a file.
func FileNotADirectory(path string) *Error {
	return newFileSystemError(CodeFileNotADirectory, "file not a directory", path)
}

// NoPermissions reports a disallowed mutation.
func NoPermissions(path, reason string) *Error {
	msg := "no permissions"
	if reason != "" {
		msg += " (" + reason + ")"
	}

	return newFileSystemError(CodeNoPermissions, msg, path)
}

// NewValidationError creates a validation error.
func NewValidationError(code Code, message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code Code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code Code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}

// IsFileSystemError checks if an error originated in the sandbox filesystem.
func IsFileSystemError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeFileSystem
	}

	return false
}
