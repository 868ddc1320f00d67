package attach

import (
	"errors"
	"fmt"
)

// Code is the status returned to attach clients.
type Code int

const (
	CodeOK              Code = 0
	CodeDisabled        Code = 100
	CodeResource        Code = 101
	CodeIllegalArgument Code = 102
	CodeInternal        Code = 103
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeDisabled:
		return "disabled"
	case CodeResource:
		return "resource"
	case CodeIllegalArgument:
		return "illegal argument"
	case CodeInternal:
		return "internal"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error carries an attach status code.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("attach: %s (%d): %s", e.Code, int(e.Code), e.Message)
}

// Enqueue returns only these values so that it never allocates.
var (
	ErrDisabled     = &Error{Code: CodeDisabled, Message: "attach listener is not initialized"}
	ErrNoFreeRecord = &Error{Code: CodeResource, Message: "too many pending operations"}
	ErrNameTooLong  = &Error{Code: CodeIllegalArgument, Message: "operation name too long"}
	ErrArgTooLong   = &Error{Code: CodeIllegalArgument, Message: "operation argument too long"}
	ErrPipeTooLong  = &Error{Code: CodeIllegalArgument, Message: "pipe name too long"}
	ErrPipeName     = &Error{Code: CodeIllegalArgument, Message: "pipe name must start with " + PipePrefix}
)

// Status maps err to its status code. Errors without a code are internal.
func Status(err error) Code {
	if err == nil {
		return CodeOK
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// IsDisabled reports whether err is the not-initialized status.
func IsDisabled(err error) bool { return Status(err) == CodeDisabled }

// IsResource reports whether err is the pool-exhausted status.
func IsResource(err error) bool { return Status(err) == CodeResource }

// IsIllegalArgument reports whether err rejects the request's arguments.
func IsIllegalArgument(err error) bool { return Status(err) == CodeIllegalArgument }
