package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/core"
	"pomolink/internal/types"
)

// CheckoutCreator starts a hosted checkout session with the payment
// provider.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, userID, email string, plan types.PlanTier, successURL, cancelURL string) (string, error)
}

// CreateCheckoutRequest is the request body for POST /v1/billing/checkout.
// FREE is not purchasable.
type CreateCheckoutRequest struct {
	Plan types.PlanTier `json:"plan" validate:"required,oneof=BASIC PRO"`
}

// CheckoutResponse carries the hosted checkout URL the client redirects to.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// BillingHandler starts plan upgrades. Plan changes themselves arrive
// asynchronously through the payment webhook; this handler only opens the
// checkout flow.
type BillingHandler struct {
	checkout   CheckoutCreator
	validator  *core.Validator
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// NewBillingHandler creates a BillingHandler. successURL and cancelURL are
// the app pages the provider redirects back to after checkout.
func NewBillingHandler(checkout CheckoutCreator, validator *core.Validator, successURL, cancelURL string, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		checkout:   checkout,
		validator:  validator,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

// RegisterRoutes mounts the billing routes on an authenticated router group.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout", h.CreateCheckout)
}

// CreateCheckout handles POST /v1/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	url, err := h.checkout.CreateCheckoutSession(r.Context(), actor.UserID, actor.Email, req.Plan, h.successURL, h.cancelURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		slog.String("user_id", actor.UserID),
		slog.String("plan", string(req.Plan)),
	)
	core.JSON(w, r, http.StatusOK, CheckoutResponse{URL: url})
}
