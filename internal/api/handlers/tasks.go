package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/tasks"
	"pomolink/internal/types"
)

// TaskService is the task and proposal surface the handler depends on.
// Mirrors the concrete tasks.Service methods used here.
type TaskService interface {
	CreateTask(ctx context.Context, roomID, actorID string, in tasks.CreateTaskInput) (*types.Task, error)
	ListTasks(ctx context.Context, roomID, actorID string) ([]types.Task, error)
	UpdateStatus(ctx context.Context, taskID, actorID string, status types.TaskStatus) error
	DeleteTask(ctx context.Context, taskID, actorID string) error
	Propose(ctx context.Context, roomID, actorID string, in tasks.ProposeInput) (*types.TaskProposal, error)
	Approve(ctx context.Context, proposalID, actorID string) (*types.Task, error)
	Reject(ctx context.Context, proposalID, actorID string) error
}

// UpdateTaskStatusRequest is the request body for the status transition
// endpoint.
type UpdateTaskStatusRequest struct {
	Status types.TaskStatus `json:"status" validate:"required,oneof=OPEN IN_PROGRESS DONE"`
}

// TaskHandler manages tasks and performer proposals within a room.
type TaskHandler struct {
	service   TaskService
	validator *core.Validator
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(service TaskService, validator *core.Validator) *TaskHandler {
	return &TaskHandler{service: service, validator: validator}
}

// RegisterRoutes mounts the task routes on an authenticated router group.
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms/{roomID}/tasks", h.Create)
	r.Get("/rooms/{roomID}/tasks", h.List)
	r.Patch("/tasks/{taskID}/status", h.UpdateStatus)
	r.Delete("/tasks/{taskID}", h.Delete)
	r.Post("/rooms/{roomID}/proposals", h.Propose)
	r.Post("/proposals/{proposalID}/approve", h.Approve)
	r.Post("/proposals/{proposalID}/reject", h.Reject)
}

// Create handles POST /v1/rooms/{roomID}/tasks. Planners only.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req tasks.CreateTaskInput
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	t, err := h.service.CreateTask(r.Context(), chi.URLParam(r, "roomID"), actor.UserID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, t)
}

// List handles GET /v1/rooms/{roomID}/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListTasks(r.Context(), chi.URLParam(r, "roomID"), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, list)
}

// UpdateStatus handles PATCH /v1/tasks/{taskID}/status.
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req UpdateTaskStatusRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "taskID"), actor.UserID, req.Status); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"updated": true})
}

// Delete handles DELETE /v1/tasks/{taskID}. Planners only.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(r.Context(), chi.URLParam(r, "taskID"), actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// Propose handles POST /v1/rooms/{roomID}/proposals. Performer only.
func (h *TaskHandler) Propose(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req tasks.ProposeInput
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	p, err := h.service.Propose(r.Context(), chi.URLParam(r, "roomID"), actor.UserID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, p)
}

// Approve handles POST /v1/proposals/{proposalID}/approve. Planners only;
// approval transactionally creates the task.
func (h *TaskHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	t, err := h.service.Approve(r.Context(), chi.URLParam(r, "proposalID"), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, t)
}

// Reject handles POST /v1/proposals/{proposalID}/reject. Planners only.
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.Reject(r.Context(), chi.URLParam(r, "proposalID"), actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"rejected": true})
}
