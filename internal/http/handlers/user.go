package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/inboxpilot-backend/internal/http/response"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

type UserHandler struct {
	svc services.UserService
}

func NewUserHandler(svc services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type personalityBody struct {
	Personality []string `json:"personality"`
}

func (h *UserHandler) GetPersonality(c *gin.Context) {
	traits, err := h.svc.GetPersonality(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "personality", personalityBody{Personality: traits})
}

func (h *UserHandler) SetPersonality(c *gin.Context) {
	var req personalityBody
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	traits, err := h.svc.SetPersonality(c.Request.Context(), callerID(c), req.Personality)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "personality updated", personalityBody{Personality: traits})
}
