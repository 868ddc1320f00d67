package oops

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes language-level and resource errors raised by the
// runtime. Every kind is catchable by managed code.
type ErrorKind string

const (
	// ErrKindArrayStore indicates an element incompatible with the
	// destination array, or a null stored into a null-free array.
	ErrKindArrayStore ErrorKind = "ArrayStoreException"

	// ErrKindIndexOutOfBounds indicates a negative position or length, or
	// a range past the end of an array.
	ErrKindIndexOutOfBounds ErrorKind = "ArrayIndexOutOfBoundsException"

	// ErrKindNegativeArraySize indicates a negative allocation length.
	ErrKindNegativeArraySize ErrorKind = "NegativeArraySizeException"

	// ErrKindOutOfMemory indicates heap or metaspace exhaustion, or a
	// length above the runtime limit.
	ErrKindOutOfMemory ErrorKind = "OutOfMemoryError"

	// ErrKindNoClassDefFound indicates a reference to an undefined class.
	ErrKindNoClassDefFound ErrorKind = "NoClassDefFoundError"

	// ErrKindLinkage indicates an invalid or duplicate class definition.
	ErrKindLinkage ErrorKind = "LinkageError"
)

// VMError is an error raised through the managed error-signaling path.
type VMError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *VMError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newVMError(kind ErrorKind, format string, args ...any) *VMError {
	return &VMError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func isKind(err error, kind ErrorKind) bool {
	var ve *VMError
	if errors.As(err, &ve) {
		return ve.Kind == kind
	}
	return false
}

// IsArrayStore returns true if err is an array store error.
func IsArrayStore(err error) bool { return isKind(err, ErrKindArrayStore) }

// IsIndexOutOfBounds returns true if err is an index out of bounds error.
func IsIndexOutOfBounds(err error) bool { return isKind(err, ErrKindIndexOutOfBounds) }

// IsNegativeArraySize returns true if err is a negative array size error.
func IsNegativeArraySize(err error) bool { return isKind(err, ErrKindNegativeArraySize) }

// IsOutOfMemory returns true if err is an out of memory error.
func IsOutOfMemory(err error) bool { return isKind(err, ErrKindOutOfMemory) }

// IsNoClassDefFound returns true if err names an undefined class.
func IsNoClassDefFound(err error) bool { return isKind(err, ErrKindNoClassDefFound) }

// KindOf returns the kind of a VMError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ve *VMError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// NewOutOfMemory builds the error heap and metaspace collaborators return
// when exhausted.
func NewOutOfMemory(space string, requested, available int64) *VMError {
	return newVMError(ErrKindOutOfMemory, "%s: requested %d bytes, %d available", space, requested, available)
}

// ContractViolation is the panic value for caller bugs such as a rank
// below one or a null-free request for a non-flattenable element. It is
// never returned as an error.
type ContractViolation struct {
	Message string
}

func (c ContractViolation) String() string {
	return "contract violation: " + c.Message
}

func guarantee(cond bool, format string, args ...any) {
	if !cond {
		panic(ContractViolation{Message: fmt.Sprintf(format, args...)})
	}
}
