package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/billing"
	"pomolink/internal/core"
	"pomolink/internal/types"
)

// UserReader resolves local user rows for the profile endpoints.
type UserReader interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// RoomCounter counts rooms created by a user.
type RoomCounter interface {
	CountByCreator(ctx context.Context, creatorID string) (int, error)
}

// UsageReader reads today's consumption for the usage snapshot.
type UsageReader interface {
	CountRecordingsBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
	CountUploadsByUserBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// PlanLimiter resolves the numeric ceilings for a plan tier.
type PlanLimiter interface {
	GetLimits(tier types.PlanTier) types.PlanLimits
}

// UserHandler serves the authenticated user's profile and usage views.
type UserHandler struct {
	users UserReader
	rooms RoomCounter
	usage UsageReader
	plans PlanLimiter
	clock types.Clock
}

// NewUserHandler creates a UserHandler. A nil clock defaults to the real
// system clock.
func NewUserHandler(users UserReader, rooms RoomCounter, usage UsageReader, plans PlanLimiter, clock types.Clock) *UserHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &UserHandler{
		users: users,
		rooms: rooms,
		usage: usage,
		plans: plans,
		clock: clock,
	}
}

// RegisterRoutes mounts the profile routes on an authenticated router group.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
	r.Get("/me/usage", h.Usage)
}

// Me handles GET /v1/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, user)
}

// Usage handles GET /v1/me/usage, combining the plan's ceilings with today's
// consumption so the dashboard can render quota bars without re-deriving the
// day window.
func (h *UserHandler) Usage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	user, err := h.users.GetByID(ctx, actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	roomsCreated, err := h.rooms.CountByCreator(ctx, user.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	from, to := billing.DayWindow(h.clock.Now())
	recordings, err := h.usage.CountRecordingsBetween(ctx, user.ID, from, to)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	uploads, err := h.usage.CountUploadsByUserBetween(ctx, user.ID, from, to)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, types.UsageSnapshot{
		Plan:            user.Plan,
		Limits:          h.plans.GetLimits(user.Plan),
		RoomsCreated:    roomsCreated,
		RecordingsToday: recordings,
		UploadsToday:    uploads,
		Points:          user.Points,
	})
}
