package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/inboxpilot-backend/internal/http/response"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

type FeedbackHandler struct {
	svc services.FeedbackService
}

func NewFeedbackHandler(svc services.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{svc: svc}
}

func (h *FeedbackHandler) Reorder(c *gin.Context) {
	var req services.ReorderRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	res, err := h.svc.Reorder(c.Request.Context(), callerID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "task re-ordered", res)
}
