package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeNotFound             Code = "NOT_FOUND"
	CodeForbidden            Code = "FORBIDDEN"
	CodeGatewayNotConfigured Code = "GATEWAY_NOT_CONFIGURED"
	CodeGatewayUnavailable   Code = "GATEWAY_UNAVAILABLE"
	CodeInvalidSignature     Code = "INVALID_SIGNATURE"
	CodeIllegalTransition    Code = "ILLEGAL_TRANSITION"
	CodeConflict             Code = "CONFLICT"
	CodeDuplicate            Code = "DUPLICATE"
	CodeDatabase             Code = "DATABASE_ERROR"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is a business failure that is returned to the caller as-is.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithField attaches a field-level detail and returns the same error.
func (e *Error) WithField(name, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[name] = detail
	return e
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(field, detail string) *Error {
	return New(CodeValidation, "Invalid input. Please check your fields.").WithField(field, detail)
}

// CodeOf returns the code of the first *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeGatewayNotConfigured:
		return http.StatusServiceUnavailable
	case CodeGatewayUnavailable:
		return http.StatusBadGateway
	case CodeInvalidSignature:
		return http.StatusBadRequest
	case CodeIllegalTransition, CodeConflict, CodeDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
