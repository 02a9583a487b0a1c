package apierr

import (
	"fmt"
	"net/http"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromDomain maps a domain error code onto an HTTP status.
func FromDomain(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	code := errs.CodeOf(err)
	switch code {
	case errs.CodeBadInput, errs.CodeOracleShape:
		return New(http.StatusBadRequest, string(code), err)
	case errs.CodeNotFound:
		return New(http.StatusNotFound, string(code), err)
	case errs.CodeConflict, errs.CodeInvariantViolation:
		return New(http.StatusConflict, string(code), err)
	case errs.CodeTransient:
		return New(http.StatusServiceUnavailable, string(code), err)
	default:
		return New(http.StatusInternalServerError, string(errs.CodeInternal), err)
	}
}
