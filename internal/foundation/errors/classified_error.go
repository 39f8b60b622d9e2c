package errors

import (
	stderrors "errors"
	"fmt"
)

// ClassifiedError represents a structured error with category, severity, and context.
type ClassifiedError struct {
	category ErrorCategory
	severity ErrorSeverity
	message  string
	cause    error
	context  ErrorContext
}

// Error implements the standard error interface.
func (e *ClassifiedError) Error() string {
	loc := e.location()
	if e.cause != nil {
		return fmt.Sprintf("[%s:%s] %s%s: %v", e.category, e.severity, e.message, loc, e.cause)
	}
	return fmt.Sprintf("[%s:%s] %s%s", e.category, e.severity, e.message, loc)
}

// location renders the file/line context reported by collaborators.
func (e *ClassifiedError) location() string {
	file, ok := e.context.GetString("file")
	if !ok || file == "" {
		return ""
	}
	if line, ok := e.context.Get("line"); ok {
		return fmt.Sprintf(" (%s:%v)", file, line)
	}
	return fmt.Sprintf(" (%s)", file)
}

// Unwrap implements Go 1.13+ error unwrapping.
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// Category returns the error category.
func (e *ClassifiedError) Category() ErrorCategory {
	return e.category
}

// Severity returns the error severity.
func (e *ClassifiedError) Severity() ErrorSeverity {
	return e.severity
}

// Message returns the error message.
func (e *ClassifiedError) Message() string {
	return e.message
}

// Cause returns the underlying error.
func (e *ClassifiedError) Cause() error {
	return e.cause
}

// Context returns the error context.
func (e *ClassifiedError) Context() ErrorContext {
	return e.context
}

// WithContext adds context to the error and returns a new error.
func (e *ClassifiedError) WithContext(key string, value any) *ClassifiedError {
	merged := e.context.Merge(ErrorContext{key: value})
	return &ClassifiedError{
		category: e.category,
		severity: e.severity,
		message:  e.message,
		cause:    e.cause,
		context:  merged,
	}
}

// Is implements error comparison for Go 1.13+ error handling.
func (e *ClassifiedError) Is(target error) bool {
	if other, ok := target.(*ClassifiedError); ok {
		return e.category == other.category && e.message == other.message
	}
	return false
}

// IsCategory checks if the error belongs to a specific category.
func (e *ClassifiedError) IsCategory(category ErrorCategory) bool {
	return e.category == category
}

// IsFatal checks if the error is fatal (should stop execution).
func (e *ClassifiedError) IsFatal() bool {
	return e.severity == SeverityFatal
}

// AsClassified finds the first ClassifiedError in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

// IsClassified checks if an error chain contains a ClassifiedError.
func IsClassified(err error) bool {
	_, ok := AsClassified(err)
	return ok
}

// HasCategory checks if the error chain contains an error of the category.
// Joined errors are searched member by member.
func HasCategory(err error, category ErrorCategory) bool {
	found := false
	walk(err, func(c *ClassifiedError) bool {
		if c.IsCategory(category) {
			found = true
			return false
		}
		return true
	})
	return found
}

// IsFatal reports whether any classified error in the chain is fatal.
// Unclassified errors are not fatal.
func IsFatal(err error) bool {
	fatal := false
	walk(err, func(c *ClassifiedError) bool {
		if c.IsFatal() {
			fatal = true
			return false
		}
		return true
	})
	return fatal
}

// GetCategory extracts the category from an error, or returns CategoryInternal.
func GetCategory(err error) ErrorCategory {
	if classified, ok := AsClassified(err); ok {
		return classified.Category()
	}
	return CategoryInternal
}

// GetSeverity extracts the severity from an error, or returns SeverityError.
func GetSeverity(err error) ErrorSeverity {
	if classified, ok := AsClassified(err); ok {
		return classified.Severity()
	}
	return SeverityError
}

// walk visits classified errors in err's tree until fn returns false.
func walk(err error, fn func(*ClassifiedError) bool) bool {
	if err == nil {
		return true
	}
	if c, ok := err.(*ClassifiedError); ok {
		if !fn(c) {
			return false
		}
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if !walk(inner, fn) {
				return false
			}
		}
	case interface{ Unwrap() error }:
		return walk(x.Unwrap(), fn)
	}
	return true
}
