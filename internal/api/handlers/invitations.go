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

// InviteService is the invitation lifecycle surface the handler depends on.
type InviteService interface {
	Create(ctx context.Context, roomID, senderID string, in rooms.CreateInvitationInput) (*types.Invitation, error)
	ListByRoom(ctx context.Context, roomID, actorID string) ([]types.Invitation, error)
	Accept(ctx context.Context, invitationID, userID string) (*types.JoinResult, error)
	Reject(ctx context.Context, invitationID, userID string) error
	Withdraw(ctx context.Context, invitationID, actorID string) error
}

// InvitationHandler manages invitation issuance and resolution.
type InvitationHandler struct {
	service   InviteService
	validator *core.Validator
	metrics   types.MetricsCollector
	logger    *slog.Logger
}

// NewInvitationHandler creates an InvitationHandler.
func NewInvitationHandler(service InviteService, validator *core.Validator, metrics types.MetricsCollector, logger *slog.Logger) *InvitationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationHandler{
		service:   service,
		validator: validator,
		metrics:   metrics,
		logger:    logger,
	}
}

// RegisterRoutes mounts the invitation routes on an authenticated router
// group.
func (h *InvitationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms/{roomID}/invitations", h.Create)
	r.Get("/rooms/{roomID}/invitations", h.List)
	r.Post("/invitations/{invitationID}/accept", h.Accept)
	r.Post("/invitations/{invitationID}/reject", h.Reject)
	r.Delete("/invitations/{invitationID}", h.Withdraw)
}

// Create handles POST /v1/rooms/{roomID}/invitations. Participants only;
// EMAIL invitations require an email address, DIRECT a receiver id.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req rooms.CreateInvitationInput
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	inv, err := h.service.Create(r.Context(), chi.URLParam(r, "roomID"), actor.UserID, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, inv)
}

// List handles GET /v1/rooms/{roomID}/invitations.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	invs, err := h.service.ListByRoom(r.Context(), chi.URLParam(r, "roomID"), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, invs)
}

// Accept handles POST /v1/invitations/{invitationID}/accept. Acceptance
// joins the room with the invited role; a full room yields the
// participant-limit denial payload.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	result, err := h.service.Accept(r.Context(), chi.URLParam(r, "invitationID"), actor.UserID)
	if err != nil {
		respondError(w, r, h.metrics, err)
		return
	}
	core.JSON(w, r, http.StatusOK, result)
}

// Reject handles POST /v1/invitations/{invitationID}/reject.
func (h *InvitationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.Reject(r.Context(), chi.URLParam(r, "invitationID"), actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"rejected": true})
}

// Withdraw handles DELETE /v1/invitations/{invitationID}. The sender, room
// creator, or any planner of the room may withdraw a pending invitation.
func (h *InvitationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.service.Withdraw(r.Context(), chi.URLParam(r, "invitationID"), actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"withdrawn": true})
}
