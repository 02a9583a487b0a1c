package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/inboxpilot-backend/internal/http/response"
	"github.com/yungbote/inboxpilot-backend/internal/services"
)

type TaskHandler struct {
	svc services.TaskService
}

func NewTaskHandler(svc services.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	t, err := h.svc.Create(c.Request.Context(), callerID(c), req)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, "task created", t)
}

func (h *TaskHandler) ListByUser(c *gin.Context) {
	userID, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if userID != callerID(c) {
		response.Abort(c, http.StatusForbidden, "forbidden", "cannot list another user's tasks")
		return
	}
	list, err := h.svc.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "tasks", list)
}

func (h *TaskHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	t, err := h.svc.Get(c.Request.Context(), callerID(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "task", t)
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var req services.UpdateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	t, err := h.svc.Update(c.Request.Context(), callerID(c), id, req)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "task updated", t)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), callerID(c), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "task deleted", gin.H{"task_id": id})
}

type dependencyRequest struct {
	DependsOn uuid.UUID `json:"depends_on"`
}

func (h *TaskHandler) AddDependency(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var req dependencyRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.svc.AddDependency(c.Request.Context(), callerID(c), id, req.DependsOn); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, "dependency added", gin.H{"task_id": id, "depends_on": req.DependsOn})
}
