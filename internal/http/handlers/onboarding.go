package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/inboxpilot-backend/internal/http/response"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

type OnboardingHandler struct {
	svc services.OnboardingService
}

func NewOnboardingHandler(svc services.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{svc: svc}
}

type startRequest struct {
	GrantID string `json:"grant_id"`
}

func (h *OnboardingHandler) Start(c *gin.Context) {
	var req startRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	res, err := h.svc.Start(c.Request.Context(), callerID(c), req.GrantID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	msg := "onboarding complete"
	if res != nil && res.WorkflowID != "" {
		msg = "onboarding started"
	}
	response.RespondOK(c, msg, res)
}

func (h *OnboardingHandler) Questions(c *gin.Context) {
	var req services.QuestionsRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.svc.Questions(c.Request.Context(), callerID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "domain inferred", out)
}

func (h *OnboardingHandler) Submit(c *gin.Context) {
	var req services.SubmitRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	personality, err := h.svc.Submit(c.Request.Context(), callerID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "personality saved", gin.H{"personality": personality})
}
