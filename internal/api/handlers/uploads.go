package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/types"
)

// UploadAdmission checks the dual per-user and per-room daily upload
// ceilings against the projected post-upload count.
type UploadAdmission interface {
	CanUpload(ctx context.Context, roomID, userID string, fileCount int) (types.Decision, error)
}

// UploadWriter persists an upload row and awards the first-submission-of-the
// day point bonus when applicable.
type UploadWriter interface {
	RecordUpload(ctx context.Context, userID, roomID, fileName string, sizeBytes int64) (*types.Upload, bool, error)
}

// UploadFile describes one artifact in a batch submission.
type UploadFile struct {
	FileName  string `json:"file_name" validate:"required,max=255"`
	SizeBytes int64  `json:"size_bytes" validate:"gte=0"`
}

// CreateUploadRequest is the request body for POST
// /v1/rooms/{roomID}/uploads.
type CreateUploadRequest struct {
	Files []UploadFile `json:"files" validate:"required,min=1,max=10,dive"`
}

// UploadResponse reports the persisted rows and whether this submission
// earned the daily point bonus.
type UploadResponse struct {
	Uploads      []*types.Upload `json:"uploads"`
	BonusAwarded bool            `json:"bonus_awarded"`
}

// UploadHandler accepts work-artifact submissions against the daily upload
// ceilings.
type UploadHandler struct {
	admission    UploadAdmission
	recorder     UploadWriter
	participants MembershipChecker
	validator    *core.Validator
	metrics      types.MetricsCollector
	logger       *slog.Logger
}

// NewUploadHandler creates an UploadHandler.
func NewUploadHandler(
	admission UploadAdmission,
	recorder UploadWriter,
	participants MembershipChecker,
	validator *core.Validator,
	metrics types.MetricsCollector,
	logger *slog.Logger,
) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{
		admission:    admission,
		recorder:     recorder,
		participants: participants,
		validator:    validator,
		metrics:      metrics,
		logger:       logger,
	}
}

// RegisterRoutes mounts the upload routes on an authenticated router group.
func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rooms/{roomID}/uploads", h.Create)
}

// Create handles POST /v1/rooms/{roomID}/uploads. The whole batch is
// admitted or denied as one unit: either every file fits under both ceilings
// or nothing is written. A denial responds 429 with the structured payload
// naming which boundary (USER or ROOM) was hit.
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")

	var req CreateUploadRequest
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
			"only room participants can upload", err))
		return
	}

	decision, err := h.admission.CanUpload(r.Context(), roomID, actor.UserID, len(req.Files))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		respondError(w, r, h.metrics, types.NewLimitError(
			types.ErrCodeLimitUploads, types.DenialUploadLimit,
			"daily upload limit reached", decision))
		return
	}

	resp := UploadResponse{Uploads: make([]*types.Upload, 0, len(req.Files))}
	for _, f := range req.Files {
		up, awarded, err := h.recorder.RecordUpload(r.Context(), actor.UserID, roomID, f.FileName, f.SizeBytes)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		resp.Uploads = append(resp.Uploads, up)
		if awarded {
			resp.BonusAwarded = true
		}
	}

	h.logger.InfoContext(r.Context(), "uploads accepted",
		slog.String("room_id", roomID),
		slog.String("user_id", actor.UserID),
		slog.Int("count", len(resp.Uploads)),
		slog.Bool("bonus_awarded", resp.BonusAwarded),
	)
	core.JSON(w, r, http.StatusCreated, resp)
}
