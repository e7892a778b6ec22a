package apperror

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeBadRequest    Code = "BAD_REQUEST"
	CodeForbidden     Code = "FORBIDDEN"
	CodeConflict      Code = "CONFLICT"
	CodeUpstreamError Code = "UPSTREAM_ERROR"
	CodeInternal      Code = "INTERNAL"
)

// Error carries a taxonomy code alongside a caller-facing message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error   { return New(CodeNotFound, format, args...) }
func BadRequest(format string, args ...any) *Error { return New(CodeBadRequest, format, args...) }
func Forbidden(format string, args ...any) *Error  { return New(CodeForbidden, format, args...) }
func Conflict(format string, args ...any) *Error   { return New(CodeConflict, format, args...) }

// Upstream wraps a processor failure; the processor message is kept for diagnostics.
func Upstream(err error) *Error {
	return &Error{Code: CodeUpstreamError, Message: err.Error(), Err: err}
}

// CodeOf returns the taxonomy code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the outermost caller-facing message.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
