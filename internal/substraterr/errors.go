// Package substraterr provides the structured error taxonomy shared by every
// core subsystem: canonical encoding, the object store, the builder, and the
// interpreter. Every failure names a Kind drawn from the taxonomy in SPEC_FULL.md
// §7 so callers can branch on failure class without parsing message text.
package substraterr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the taxonomy's five groups.
type Kind string

const (
	// Structural
	KindInvalidCanonicalForm Kind = "INVALID_CANONICAL_FORM"
	KindCorruptObject        Kind = "CORRUPT_OBJECT"
	KindUnknownKind          Kind = "UNKNOWN_KIND"

	// Resolution
	KindNotFound        Kind = "NOT_FOUND"
	KindUnknownSymbol    Kind = "UNKNOWN_SYMBOL"
	KindAmbiguousSymbol  Kind = "AMBIGUOUS_SYMBOL"

	// Compile-time
	KindStackUnderflow    Kind = "STACK_UNDERFLOW"
	KindTypeMismatch      Kind = "TYPE_MISMATCH"
	KindMissingToken      Kind = "MISSING_TOKEN"
	KindDuplicateExport   Kind = "DUPLICATE_EXPORT"
	KindGuardRejectsEffect Kind = "GUARD_REJECTS_EFFECT"

	// Runtime
	KindArgumentCountMismatch Kind = "ARGUMENT_COUNT_MISMATCH"
	KindDivByZero             Kind = "DIV_BY_ZERO"
	KindExecutionTrap         Kind = "EXECUTION_TRAP"
	KindGuardFailedNoDeopt    Kind = "GUARD_FAILED_NO_DEOPT"
	KindGlobalNotFound        Kind = "GLOBAL_NOT_FOUND"

	// IO
	KindStoreIoError Kind = "STORE_IO_ERROR"
)

// Error is a structured error carrying a Kind, a message, an optional cause, and
// freeform context (e.g. the offending symbol name, the domain that lacked a
// token). Nothing in this module retries on an Error; it is always fatal to the
// operation that raised it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Context: make(map[string]interface{})}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause, Context: make(map[string]interface{})}
}

// Wrapf creates an Error wrapping cause with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return Wrap(kind, fmt.Sprintf(format, args...), cause)
}

// With attaches context to the error and returns it for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// Is reports whether err is a *Error of the given kind, unwrapping through any
// wrapping chain (errors.As) rather than requiring err itself to be *Error.
func Is(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}
