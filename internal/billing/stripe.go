package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"pomolink/internal/external"
	"pomolink/internal/types"
)

// stripeAPIBase is the default Stripe API base URL, overridable in tests.
const stripeAPIBase = "https://api.stripe.com"

// Stripe webhook event types the subscription sync handles.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventSubUpdated        = "customer.subscription.updated"
	EventSubDeleted        = "customer.subscription.deleted"
)

// PriceTable maps plan tiers to Stripe Price IDs and back. Populated from
// configuration at startup.
type PriceTable struct {
	planToPrice map[types.PlanTier]string
	priceToPlan map[string]types.PlanTier
}

// NewPriceTable builds a PriceTable from a plan-to-price mapping.
func NewPriceTable(planToPrice map[types.PlanTier]string) *PriceTable {
	t := &PriceTable{
		planToPrice: make(map[types.PlanTier]string, len(planToPrice)),
		priceToPlan: make(map[string]types.PlanTier, len(planToPrice)),
	}
	for plan, price := range planToPrice {
		t.planToPrice[plan] = price
		t.priceToPlan[price] = plan
	}
	return t
}

// PriceFor returns the Stripe Price ID for a paid plan tier.
func (t *PriceTable) PriceFor(plan types.PlanTier) (string, bool) {
	id, ok := t.planToPrice[plan]
	return id, ok
}

// PlanFor returns the plan tier behind a Stripe Price ID, defaulting to FREE
// for unknown prices.
func (t *PriceTable) PlanFor(priceID string) types.PlanTier {
	if plan, ok := t.priceToPlan[priceID]; ok {
		return plan
	}
	return types.PlanFree
}

// StripeClient talks to the Stripe REST API through the shared resilient
// outbound client. Direct form-encoded calls keep the surface small and make
// httptest-based testing straightforward; the stripe-go library still
// supplies the pinned API version and webhook signature validation.
type StripeClient struct {
	base      *external.OutboundClient
	secretKey string
	baseURL   string
	prices    *PriceTable
	logger    *slog.Logger
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // override for testing; defaults to stripeAPIBase
	Prices    *PriceTable
	Logger    *slog.Logger
}

// NewStripeClient creates a StripeClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := external.NewOutboundClient(
		httpClient,
		"stripe",
		types.ErrCodeUpstreamStripe,
		external.RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"PomoLink/1.0",
	)
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		prices:    cfg.Prices,
		logger:    logger,
	}
}

// checkoutSessionResponse is the slice of the Stripe checkout session object
// the upgrade flow needs.
type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession starts a Stripe Checkout flow upgrading the user to
// the given paid plan and returns the hosted checkout URL. The user id rides
// along as client_reference_id and metadata so the webhook can map the
// completed session back to an account.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, userID, email string, plan types.PlanTier, successURL, cancelURL string) (string, error) {
	priceID, ok := s.prices.PriceFor(plan)
	if !ok {
		return "", types.NewAppError(types.ErrCodeValidationInvalidEnum,
			fmt.Sprintf("plan %s is not purchasable", plan), nil)
	}

	params := url.Values{}
	params.Set("mode", "subscription")
	params.Set("client_reference_id", userID)
	params.Set("customer_email", email)
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("success_url", successURL)
	params.Set("cancel_url", cancelURL)
	params.Set("metadata[user_id]", userID)
	params.Set("metadata[plan]", string(plan))
	params.Set("subscription_data[metadata][user_id]", userID)

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.ErrorContext(ctx, "checkout session creation failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return "", types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("stripe returned %d", resp.StatusCode), nil)
	}

	var session checkoutSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamStripe, "malformed checkout session response", err)
	}
	return session.URL, nil
}

// doPost performs an authenticated form-encoded POST to the Stripe API.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build stripe request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	return s.base.Do(req)
}

// StripeVerifier validates the Stripe-Signature header using stripe-go's
// HMAC-SHA256 check with timestamp tolerance.
type StripeVerifier struct{}

// Verify checks payload against the signature header and signing secret.
func (StripeVerifier) Verify(payload []byte, header, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// SubscriptionSync applies Stripe subscription lifecycle events to local plan
// state. Events carry the user id in metadata (set by CreateCheckoutSession),
// so the mapping back to an account never depends on Stripe customer ids.
type SubscriptionSync struct {
	users  types.UserStore
	prices *PriceTable
	logger *slog.Logger
}

// NewSubscriptionSync constructs a SubscriptionSync.
func NewSubscriptionSync(users types.UserStore, prices *PriceTable, logger *slog.Logger) *SubscriptionSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionSync{users: users, prices: prices, logger: logger}
}

// stripeEvent is a minimal representation of a Stripe webhook event; the full
// stripe.Event type is deliberately avoided to keep parsing explicit.
type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCheckoutSession struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Apply parses and applies one verified Stripe event. Unknown event types are
// a successful no-op.
func (s *SubscriptionSync) Apply(ctx context.Context, payload []byte) error {
	var evt stripeEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed stripe event", err)
	}

	switch evt.Type {
	case EventCheckoutCompleted:
		return s.applyCheckout(ctx, &evt)
	case EventSubUpdated:
		return s.applySubscriptionUpdate(ctx, &evt)
	case EventSubDeleted:
		return s.applySubscriptionDeleted(ctx, &evt)
	default:
		s.logger.DebugContext(ctx, "ignoring stripe event", slog.String("type", evt.Type))
		return nil
	}
}

func (s *SubscriptionSync) applyCheckout(ctx context.Context, evt *stripeEvent) error {
	var session stripeCheckoutSession
	if err := json.Unmarshal(evt.Data.Object, &session); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed checkout session", err)
	}

	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata["user_id"]
	}
	if userID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("event %s has no user reference", evt.ID), nil)
	}

	plan := types.PlanTier(session.Metadata["plan"])
	if plan != types.PlanBasic && plan != types.PlanPro {
		return types.NewAppError(types.ErrCodeValidationInvalidEnum,
			fmt.Sprintf("event %s has no purchasable plan", evt.ID), nil)
	}

	if err := s.users.UpdatePlan(ctx, userID, plan); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "plan upgraded",
		slog.String("user_id", userID),
		slog.String("plan", string(plan)),
	)
	return nil
}

func (s *SubscriptionSync) applySubscriptionUpdate(ctx context.Context, evt *stripeEvent) error {
	var sub stripeSubscription
	if err := json.Unmarshal(evt.Data.Object, &sub); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed subscription", err)
	}
	userID := sub.Metadata["user_id"]
	if userID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("event %s has no user reference", evt.ID), nil)
	}

	// A subscription that is no longer collectible drops the user to FREE;
	// otherwise the plan follows the subscribed price.
	plan := types.PlanFree
	switch types.SubscriptionStatus(sub.Status) {
	case types.SubStatusActive, types.SubStatusTrialing, types.SubStatusPastDue:
		if len(sub.Items.Data) > 0 {
			plan = s.prices.PlanFor(sub.Items.Data[0].Price.ID)
		}
	}

	if err := s.users.UpdatePlan(ctx, userID, plan); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "plan synchronized",
		slog.String("user_id", userID),
		slog.String("plan", string(plan)),
		slog.String("subscription_status", sub.Status),
	)
	return nil
}

func (s *SubscriptionSync) applySubscriptionDeleted(ctx context.Context, evt *stripeEvent) error {
	var sub stripeSubscription
	if err := json.Unmarshal(evt.Data.Object, &sub); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed subscription", err)
	}
	userID := sub.Metadata["user_id"]
	if userID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("event %s has no user reference", evt.ID), nil)
	}

	if err := s.users.UpdatePlan(ctx, userID, types.PlanFree); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "subscription canceled, reverted to FREE",
		slog.String("user_id", userID),
	)
	return nil
}
