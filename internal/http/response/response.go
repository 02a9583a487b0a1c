package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/inboxpilot-backend/internal/platform/apierr"
)

type APIError struct {
	Code string `json:"code"`
}

// Envelope wraps every JSON response. Error is set only on failures.
type Envelope struct {
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error,omitempty"`
}

func RespondOK(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{Message: message, Data: data})
}

func RespondCreated(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Message: message, Data: data})
}

// RespondError maps err through its domain code. Internal errors do not leak
// their message.
func RespondError(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	ae := apierr.FromDomain(err)
	msg := ae.Error()
	if ae.Status >= http.StatusInternalServerError && ae.Status != http.StatusServiceUnavailable {
		msg = "internal error"
	}
	_ = c.Error(err)
	Abort(c, ae.Status, ae.Code, msg)
}

func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{Message: message, Data: nil, Error: &APIError{Code: code}})
}
