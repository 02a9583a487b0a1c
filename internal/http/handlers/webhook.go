package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/inboxpilot-backend/internal/http/response"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

type WebhookHandler struct {
	svc services.WebhookService
}

func NewWebhookHandler(svc services.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Challenge answers the provider's subscription handshake.
func (h *WebhookHandler) Challenge(c *gin.Context) {
	c.String(http.StatusOK, c.Query("challenge"))
}

func (h *WebhookHandler) Receive(c *gin.Context) {
	var ev services.WebhookEvent
	if err := bindJSON(c, &ev); err != nil {
		response.RespondError(c, err)
		return
	}
	ack, err := h.svc.Handle(c.Request.Context(), ev)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "webhook received", ack)
}
