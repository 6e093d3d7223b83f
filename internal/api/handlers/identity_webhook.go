package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/identity"
	"pomolink/internal/types"
)

// identityMaxBodyBytes caps the identity webhook payload size.
const identityMaxBodyBytes = 64 * 1024

// IdentityVerifier checks the signed webhook headers against the shared
// secret.
type IdentityVerifier interface {
	Verify(header http.Header, payload []byte) error
}

// IdentityApplier mirrors a verified identity-provider event into the local
// user table.
type IdentityApplier interface {
	Apply(ctx context.Context, evt *identity.WebhookEvent) error
}

// IdentityWebhookHandler receives user lifecycle events from the identity
// provider. Mounted outside the auth middleware; authenticity comes from the
// signature check.
type IdentityWebhookHandler struct {
	verifier IdentityVerifier
	applier  IdentityApplier
	logger   *slog.Logger
}

// NewIdentityWebhookHandler creates an IdentityWebhookHandler.
func NewIdentityWebhookHandler(verifier IdentityVerifier, applier IdentityApplier, logger *slog.Logger) *IdentityWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityWebhookHandler{
		verifier: verifier,
		applier:  applier,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook on a public router.
func (h *IdentityWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/identity", h.Handle)
}

// Handle processes POST /webhooks/identity. The synchronizer is idempotent
// (upsert keyed by email, delete tolerant of missing rows), so provider
// redeliveries converge on the same state. Processing failures respond with
// their mapped status so the provider retries.
func (h *IdentityWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, identityMaxBodyBytes))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationWebhook,
			"failed to read webhook payload", err))
		return
	}

	if err := h.verifier.Verify(r.Header, payload); err != nil {
		h.logger.WarnContext(r.Context(), "identity webhook signature rejected",
			slog.String("error", err.Error()),
		)
		core.Error(w, r, err)
		return
	}

	var evt identity.WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"malformed webhook payload", err))
		return
	}

	if err := h.applier.Apply(r.Context(), &evt); err != nil {
		h.logger.ErrorContext(r.Context(), "identity webhook processing failed",
			slog.String("event_type", evt.Type),
			slog.String("error", err.Error()),
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
