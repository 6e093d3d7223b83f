package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/types"
)

// RecordingAdmission checks the daily recording quota before a recording is
// accepted.
type RecordingAdmission interface {
	CanRecord(ctx context.Context, roomID, userID string) (types.Decision, error)
}

// RecordingWriter persists a usage row for an admitted recording.
type RecordingWriter interface {
	RecordRecording(ctx context.Context, userID, roomID string, sessionID *string, sizeBytes int64, durationSec int) (*types.RecordingUsage, error)
}

// RecordingLister reads back a room's recording history.
type RecordingLister interface {
	ListRecordingsByRoom(ctx context.Context, roomID string, limit int) ([]types.RecordingUsage, error)
}

// recordingListLimit caps the history endpoint's page size.
const recordingListLimit = 100

// MembershipChecker resolves a participant row; a not-found error means the
// user is not in the room.
type MembershipChecker interface {
	Get(ctx context.Context, roomID, userID string) (*types.RoomParticipant, error)
}

// CreateRecordingRequest is the request body for POST
// /v1/rooms/{roomID}/recordings.
type CreateRecordingRequest struct {
	SessionID   *string `json:"session_id,omitempty"`
	SizeBytes   int64   `json:"size_bytes" validate:"gte=0"`
	DurationSec int     `json:"duration_sec" validate:"gte=0"`
}

// RecordingHandler accepts completed pomodoro recordings against the
// room-pooled daily quota.
type RecordingHandler struct {
	admission    RecordingAdmission
	recorder     RecordingWriter
	lister       RecordingLister
	participants MembershipChecker
	validator    *core.Validator
	metrics      types.MetricsCollector
	logger       *slog.Logger
}

// NewRecordingHandler creates a RecordingHandler.
func NewRecordingHandler(
	admission RecordingAdmission,
	recorder RecordingWriter,
	lister RecordingLister,
	participants MembershipChecker,
	validator *core.Validator,
	metrics types.MetricsCollector,
	logger *slog.Logger,
) *RecordingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordingHandler{
		admission:    admission,
		recorder:     recorder,
		lister:       lister,
		participants: participants,
		validator:    validator,
		metrics:      metrics,
		logger:       logger,
	}
}

// RegisterRoutes mounts the recording routes on an authenticated router
// group.
func (h *RecordingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms/{roomID}/recordings", h.Create)
	r.Get("/rooms/{roomID}/recordings", h.List)
}

// List handles GET /v1/rooms/{roomID}/recordings. Participants only.
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")

	if _, err := h.participants.Get(r.Context(), roomID, actor.UserID); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionRole,
			"only room participants can view recordings", err))
		return
	}

	recs, err := h.lister.ListRecordingsByRoom(r.Context(), roomID, recordingListLimit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, recs)
}

// Create handles POST /v1/rooms/{roomID}/recordings. Participants only. The
// quota check and the usage insert are separate steps; the check is advisory
// and a burst across the boundary over-records rather than blocking.
func (h *RecordingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")

	var req CreateRecordingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.participants.Get(r.Context(), roomID, actor.UserID); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionRole,
			"only room participants can record", err))
		return
	}

	decision, err := h.admission.CanRecord(r.Context(), roomID, actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		respondError(w, r, h.metrics, types.NewLimitError(
			types.ErrCodeLimitRecordings, types.DenialRecordingLimit,
			"daily recording limit reached", decision))
		return
	}

	rec, err := h.recorder.RecordRecording(r.Context(), actor.UserID, roomID, req.SessionID, req.SizeBytes, req.DurationSec)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "recording accepted",
		slog.String("recording_id", rec.ID),
		slog.String("room_id", roomID),
		slog.String("user_id", actor.UserID),
	)
	core.JSON(w, r, http.StatusCreated, rec)
}
