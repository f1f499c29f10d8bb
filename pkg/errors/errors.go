// Package errors provides structured, coded errors for actorflow.
// Every failure that crosses a package boundary carries a Code so callers
// (the CLI, the report assembler's failure policy) can branch on it.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Input errors (1xx)
	CodeFileNotFound     Code = "E101"
	CodeMalformedEdgeKey Code = "E104"
	CodeInvalidConfig    Code = "E105"

	// Processing errors (2xx)
	CodeAggregationFailed Code = "E203"

	// Output errors (3xx)
	CodeCacheWriteFailed  Code = "E301"
	CodeCacheReadFailed   Code = "E302"
	CodeReportWriteFailed Code = "E303"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"

	// Graph/query errors (5xx)
	CodeGraphInit            Code = "E501"
	CodeQueryFailed          Code = "E502"
	CodeQueryTemplate        Code = "E504"
	CodeClassificationFailed Code = "E505"

	CodeUnknown Code = "E999"
)

// Error is the base error type for all actorflow errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface. Context keys are printed in
// sorted order so messages are stable across runs.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
// It returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{Code: code, Message: message, Cause: err}
}

// --- Convenience constructors ---

// MalformedEdgeKey reports an edge key that does not have the shape the
// dataset's key schema requires.
func MalformedEdgeKey(key any, reason string) *Error {
	return New(CodeMalformedEdgeKey, "malformed edge key").
		WithContext("key", key).
		WithContext("reason", reason)
}

// InvalidConfig reports a configuration value that failed validation.
func InvalidConfig(field string, value any, reason string) *Error {
	return New(CodeInvalidConfig, reason).
		WithContext("field", field).
		WithContext("value", value)
}

// QueryFailed wraps an error returned by the query executor.
func QueryFailed(query string, err error) *Error {
	return Wrap(err, CodeQueryFailed, "query execution failed").
		WithContext("query", query)
}

// CacheWriteFailed wraps a failure to persist a cache artifact.
func CacheWriteFailed(path string, err error) *Error {
	return Wrap(err, CodeCacheWriteFailed, "failed to persist cache artifact").
		WithContext("path", path)
}

// CacheReadFailed wraps a failure to load an existing cache artifact.
func CacheReadFailed(path string, err error) *Error {
	return Wrap(err, CodeCacheReadFailed, "failed to load cache artifact").
		WithContext("path", path)
}

// ReportWriteFailed wraps a failure to write a report artifact.
func ReportWriteFailed(path string, err error) *Error {
	return Wrap(err, CodeReportWriteFailed, "failed to write report").
		WithContext("path", path)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code anywhere in its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap returns the collected errors so errors.Is and errors.As see each.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
