// Package errors carries the structured error type surfaced by every nopea
// subsystem. An Error pairs a stable Code with the domain that raised it,
// so callers can branch on classification without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a coded error with the originating domain and an optional cause.
type Error struct {
	Code    Code
	Domain  string
	Message string
	Cause   error
}

// New creates an error with the given code, domain, message, and optional cause.
func New(code Code, domain string, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Domain:  domain,
		Message: message,
		Cause:   cause,
	}
}

// Newf creates an error with a formatted message and no cause.
func Newf(code Code, domain string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Domain:  domain,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Domain, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Domain, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so errors.Is works against sentinel coded errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the Code from err, walking wrapped causes.
// Plain errors classify as CodeUnknown; nil yields the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Tag is the lowercase form of the error's code, used as the canonical name
// of error nodes in the knowledge graph and as the occurrence summary key.
func Tag(err error) string {
	return strings.ToLower(string(CodeOf(err)))
}
