package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies failures for propagation and HTTP mapping.
type Code string

const (
	CodeBadInput           Code = "bad_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTransient          Code = "transient"
	CodeOracleShape        Code = "oracle_shape"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with code. A nil err stays nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(code, op, err.Error(), err)
}

func BadInput(op, message string) error { return New(CodeBadInput, op, message, nil) }

func NotFound(op, message string) error { return New(CodeNotFound, op, message, nil) }

func Invariant(op, message string) error { return New(CodeInvariantViolation, op, message, nil) }

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
