package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/domain/errs"
	"github.com/yungbote/inboxpilot-backend/internal/platform/ctxutil"
)

func callerID(c *gin.Context) uuid.UUID {
	return ctxutil.UserID(c.Request.Context())
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errs.BadInput("http.param", "invalid "+name)
	}
	return id, nil
}

// bindJSON maps decode failures onto bad_input.
func bindJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil {
		return errs.New(errs.CodeBadInput, "http.bind", "invalid request body", err)
	}
	return nil
}
