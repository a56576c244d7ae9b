// Package bulkerrors provides structured error handling for bulkflow with
// categorization, contextual details and captured stack traces.
//
// # Basic Usage
//
//	err := bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "bulk update is not supported")
//
//	if _, err := s.Exec(ctx, sql); err != nil {
//	    return bulkerrors.Wrap(err, bulkerrors.ErrorTypeQuery, "commit statement failed").
//	        WithDetail("table", table)
//	}
//
// # Error Types
//
// The type drives caller decisions: an unsupported or config error means the
// request can never succeed as issued, a conflict error means the database
// state diverged from the caller's expectation, and query or connection
// errors carry the driver error as their cause.
//
// Error instances are not safe for concurrent modification.
package bulkerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents lookups of unknown columns or ordinals
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents optimistic concurrency conflicts
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeTimeout represents command timeouts
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConnection represents transport and connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents value conversion errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeUnsupported represents requests the engine cannot serve
	ErrorTypeUnsupported ErrorType = "unsupported"
	// ErrorTypeQuery represents statement execution errors
	ErrorTypeQuery ErrorType = "query"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. Calls can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, capturing the
// call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. If the error is
// already a structured Error, its stack trace is preserved. Returns nil if
// err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType reports whether any error in err's chain is a structured Error of
// the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the outermost structured Error in err's chain,
// or ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
