package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/rooms"
	"pomolink/internal/types"
)

// RoomService is the room lifecycle surface the handler depends on.
// Mirrors the concrete rooms.Service methods used here.
type RoomService interface {
	CreateRoom(ctx context.Context, creatorID string, in rooms.CreateRoomInput) (*types.Room, error)
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)
	ListParticipants(ctx context.Context, roomID string) ([]types.RoomParticipant, error)
	JoinByCode(ctx context.Context, code, userID string) (*types.JoinResult, error)
	DeleteRoom(ctx context.Context, roomID, actorID string) error
	Leave(ctx context.Context, roomID, userID string) error
	TransferMainPlanner(ctx context.Context, roomID, actorID, newPlannerID string) error
}

// CreateRoomRequest is the request body for POST /v1/rooms.
type CreateRoomRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description,omitempty" validate:"max=500"`
	IsPrivate   bool   `json:"is_private,omitempty"`
}

// JoinRoomRequest is the request body for POST /v1/rooms/join.
type JoinRoomRequest struct {
	InviteCode string `json:"invite_code" validate:"required,min=8,max=10"`
}

// TransferMainPlannerRequest is the request body for the main-planner
// transfer endpoint.
type TransferMainPlannerRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// RoomDetail aggregates the room with its membership for the detail view.
type RoomDetail struct {
	*types.Room
	Participants []types.RoomParticipant `json:"participants"`
}

// RoomHandler manages room CRUD, joining, leaving, and the main-planner
// transfer.
type RoomHandler struct {
	service   RoomService
	validator *core.Validator
	metrics   types.MetricsCollector
	logger    *slog.Logger
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(service RoomService, validator *core.Validator, metrics types.MetricsCollector, logger *slog.Logger) *RoomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomHandler{
		service:   service,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterRoutes mounts the room routes on an authenticated router group.
func (h *RoomHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms", h.Create)
	r.Post("/rooms/join", h.JoinByCode)
	r.Get("/rooms/{roomID}", h.Get)
	r.Delete("/rooms/{roomID}", h.Delete)
	r.Get("/rooms/{roomID}/participants", h.ListParticipants)
	r.Post("/rooms/{roomID}/leave", h.Leave)
	r.Post("/rooms/{roomID}/main-planner", h.TransferMainPlanner)
}

// Create handles POST /v1/rooms. A plan at its room ceiling gets the
// structured denial payload rather than the error envelope.
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), actor.UserID, rooms.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		respondError(w, r, h.metrics, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, room)
}

// Get handles GET /v1/rooms/{roomID}, returning the room with its
// participant list.
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")

	room, err := h.service.GetRoom(r.Context(), roomID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	participants, err := h.service.ListParticipants(r.Context(), roomID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, RoomDetail{Room: room, Participants: participants})
}

// ListParticipants handles GET /v1/rooms/{roomID}/participants.
func (h *RoomHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	participants, err := h.service.ListParticipants(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, participants)
}

// JoinByCode handles POST /v1/rooms/join. Repeat joins are idempotent and
// respond 200 with alreadyJoined; a full room yields the participant-limit
// denial payload.
func (h *RoomHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req JoinRoomRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.JoinByCode(r.Context(), req.InviteCode, actor.UserID)
	if err != nil {
		respondError(w, r, h.metrics, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyJoined {
		status = http.StatusOK
	}
	core.JSON(w, r, status, result)
}

// Delete handles DELETE /v1/rooms/{roomID}. Creator-only; cascades
// membership and emits the room-deleted mirror event.
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRoom(r.Context(), chi.URLParam(r, "roomID"), actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}

// Leave handles POST /v1/rooms/{roomID}/leave. The creator cannot leave;
// a leaving main planner vacates the slot.
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.Leave(r.Context(), chi.URLParam(r, "roomID"), actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"left": true})
}

// TransferMainPlanner handles POST /v1/rooms/{roomID}/main-planner. Only the
// current main planner may transfer the slot; the creator may fill a vacant
// one.
func (h *RoomHandler) TransferMainPlanner(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req TransferMainPlannerRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	roomID := chi.URLParam(r, "roomID")
	if err := h.service.TransferMainPlanner(r.Context(), roomID, actor.UserID, req.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "main planner transferred",
		slog.String("room_id", roomID),
		slog.String("from", actor.UserID),
		slog.String("to", req.UserID),
	)
	core.JSON(w, r, http.StatusOK, map[string]bool{"transferred": true})
}
