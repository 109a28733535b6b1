// Package errors provides internal invariant-violation errors for rmcc.
// These are never user-facing: they signal a contract violation between
// the lowering step and the back end, and abort compilation.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryContract ErrorCategory = "CONTRACT"
	CategoryCapacity ErrorCategory = "CAPACITY"
	CategoryInternal ErrorCategory = "INTERNAL"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Common error constructors
func UnsupportedSize(size int, context string) *StandardError {
	return NewStandardError(CategoryContract, "UNSUPPORTED_SIZE",
		fmt.Sprintf("Unsupported memory access size %d in %s", size, context),
		map[string]interface{}{"size": size, "context": context})
}

func MissingSymbol(name string) *StandardError {
	return NewStandardError(CategoryContract, "MISSING_SYMBOL",
		fmt.Sprintf("Expected symbol '%s' is not defined", name),
		map[string]interface{}{"name": name})
}

func RegisterAllocationFailed(block, value string) *StandardError {
	return NewStandardError(CategoryCapacity, "REGALLOC_FAILED",
		fmt.Sprintf("Unable to find a register for %s in %s", value, block),
		map[string]interface{}{"block": block, "value": value})
}

func UnreachableInstruction(details string) *StandardError {
	return NewStandardError(CategoryInternal, "UNREACHABLE_INSTRUCTION",
		fmt.Sprintf("Unexpected instruction form: %s", details),
		map[string]interface{}{"details": details})
}

// Fatal aborts the current compilation phase. Callers at a phase boundary
// turn the panic back into an error with Recover.
func Fatal(err *StandardError) {
	panic(err)
}

// Recover converts a Fatal panic into an error stored in *errp. Any other
// panic value is re-raised.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if se, ok := r.(*StandardError); ok {
		*errp = se
		return
	}
	panic(r)
}

// Is reports whether err carries a StandardError with the given code.
func Is(err error, code string) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
