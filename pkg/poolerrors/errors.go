// Package poolerrors provides the structured error type used across dbpool.
// Errors carry a category, a message, the underlying cause, key-value details
// and the call stack captured where they were created.
//
// # Categories
//
// The pool surfaces four categories to callers:
//   - ErrorTypeAuthentication: the submitted credential does not match the pool user
//   - ErrorTypeConnection: fetching or validating a physical connection failed
//   - ErrorTypeConfig: a tuning parameter is out of range
//   - ErrorTypeState: the pool was used after Close
//
// # Usage
//
//	conn, err := wrapper.Connection(ctx, user)
//	if poolerrors.IsType(err, poolerrors.ErrorTypeAuthentication) {
//	    // wrong username or password, never retried
//	}
//
// Details never contain passwords. Connection errors carry the pool URL and
// username so that operators can tell pools apart in logs.
package poolerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of an error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeAuthentication represents credential mismatches
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeConnection represents connection fetch or validation failures
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeTimeout represents a checkout that waited too long
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConfig represents invalid configuration
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeState represents operations attempted in the wrong lifecycle state
	ErrorTypeState ErrorType = "state"
)

// Error is a structured error with context.
//
// Fields:
//   - Type: the error category
//   - Message: human readable description
//   - Cause: the wrapped error, if any
//   - Details: additional key-value context
//   - Stack: call stack at creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single frame of a captured call stack.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error so errors.Is and errors.As see through it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail and returns the error for chaining.
//
// Example:
//
//	return poolerrors.New(poolerrors.ErrorTypeConnection, "connection failed validation").
//	    WithDetail("url", url).
//	    WithDetail("username", user.Username)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given type, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a type and message. The stack of an already structured
// cause is kept. Returns nil if err is nil.
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

// IsRetryable reports whether a caller may reasonably retry the operation.
// Connection and timeout errors are retryable; credential, configuration and
// state errors are not. The pool itself never retries.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeInternal, ErrorTypeValidation, ErrorTypeAuthentication,
		ErrorTypeConfig, ErrorTypeState:
		return false
	default:
		return false
	}
}

// IsType reports whether the outermost structured error in err's chain has
// the given type.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// GetType returns the type of the outermost structured error, or
// ErrorTypeInternal when err carries none.
func GetType(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
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
