package error

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies errors by how the storage engine reacts to them.
type ErrorCategory int

const (
	// ErrCategoryUser represents invalid arguments supplied by the caller.
	// Examples: unparsable values, unknown column names, a variable schema
	// handed to a fixed-size organization.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategorySystem represents failures of the host environment.
	// Examples: open/read/write errors, a file already locked by another handle.
	ErrCategorySystem

	// ErrCategoryData represents on-disk content that cannot be decoded.
	// Examples: short block reads, header checksum mismatch, malformed schema text.
	ErrCategoryData

	// ErrCategoryConsistency represents a broken internal invariant such as a
	// corrupt free list or a partition level mismatch. Errors in this category
	// are never returned; they are raised with Fatal and abort the operation.
	ErrCategoryConsistency

	// ErrCategoryTypeMismatch represents comparing or writing values whose
	// byte length does not match the column's declared size.
	ErrCategoryTypeMismatch

	// ErrCategoryNotFound is reserved for lookups that must find something.
	// Selects that match nothing return empty results instead.
	ErrCategoryNotFound

	// ErrCategoryCapacity represents a block or file that cannot take more
	// data. Managers handle it internally by starting a new block.
	ErrCategoryCapacity
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryUser:
		return "user"
	case ErrCategorySystem:
		return "system"
	case ErrCategoryData:
		return "data"
	case ErrCategoryConsistency:
		return "consistency"
	case ErrCategoryTypeMismatch:
		return "type_mismatch"
	case ErrCategoryNotFound:
		return "not_found"
	case ErrCategoryCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// DBError represents a structured storage error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "SHORT_READ", "FREE_LIST_CORRUPT").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	// Example: "block 12 of users.tbl returned 1000 of 4096 bytes".
	Detail string

	// Hint suggests how the user might fix or work around this error.
	Hint string

	// Operation identifies the operation that was being performed when the error occurred.
	// Examples: "Insert", "GetBlock", "Reorganize".
	Operation string

	// Component identifies the system component where the error originated.
	// Examples: "PagedFile", "HeapManager", "Block".
	Component string

	// Cause is the underlying error that triggered this error.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	err := &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
	return err
}

// Newf is New with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...any) *DBError {
	err := &DBError{
		Code:     code,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Stack:    captureStack(),
	}
	return err
}

// Wrap wraps an existing error with storage-specific context information.
// If the error is already a DBError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithDetail sets Detail and returns the receiver for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint sets Hint and returns the receiver for chaining.
func (e *DBError) WithHint(hint string) *DBError {
	e.Hint = hint
	return e
}

// At records where the error happened and returns the receiver.
func (e *DBError) At(operation, component string) *DBError {
	e.Operation = operation
	e.Component = component
	return e
}

// Fatal panics with a consistency error. It is used for invariant violations
// that indicate an earlier silent bug; callers must not recover from it.
func Fatal(code, component, format string, args ...any) {
	err := &DBError{
		Code:      code,
		Category:  ErrCategoryConsistency,
		Message:   fmt.Sprintf(format, args...),
		Component: component,
		Stack:     captureStack(),
	}
	panic(err)
}

// Assert calls Fatal when cond is false.
func Assert(cond bool, code, component, format string, args ...any) {
	if !cond {
		Fatal(code, component, format, args...)
	}
}

// HasCategory reports whether any DBError in err's chain has category c.
func HasCategory(err error, c ErrorCategory) bool {
	var dbErr *DBError
	for err != nil {
		if errors.As(err, &dbErr) {
			if dbErr.Category == c {
				return true
			}
			err = dbErr.Cause
			continue
		}
		return false
	}
	return false
}

// captureStack captures the current call stack for debugging purposes.
// It skips the first 3 frames to exclude captureStack, New/Wrap, and the
// immediate caller, focusing on the actual error origin.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	} else if e.Component != "" {
		b.WriteString(fmt.Sprintf(" (component: %s)", e.Component))
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with Go's standard error handling functions like errors.Is and errors.As.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}
