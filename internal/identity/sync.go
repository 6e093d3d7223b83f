package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"pomolink/internal/types"
)

// Provider webhook event types the synchronizer handles. Anything else is
// acknowledged and ignored.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// WebhookEvent is the provider's event envelope.
type WebhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// userPayload is the provider's user object, trimmed to the fields the sync
// cares about.
type userPayload struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ImageURL       string `json:"image_url"`
	PrimaryEmailID string `json:"primary_email_address_id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// deletedPayload is the provider's user.deleted object.
type deletedPayload struct {
	ID string `json:"id"`
}

// Synchronizer applies provider webhook events to the local user table.
//
// Deliveries are retried and duplicated by the provider, so every handler is
// idempotent: created and updated both resolve to an upsert keyed by email,
// and deleting an already-absent user succeeds.
type Synchronizer struct {
	users  types.UserStore
	logger *slog.Logger
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(users types.UserStore, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{users: users, logger: logger}
}

// Apply dispatches one verified webhook event. Unknown event types are a
// successful no-op so new provider events never fail deliveries.
func (s *Synchronizer) Apply(ctx context.Context, evt *WebhookEvent) error {
	switch evt.Type {
	case EventUserCreated, EventUserUpdated:
		return s.applyUpsert(ctx, evt.Data)
	case EventUserDeleted:
		return s.applyDelete(ctx, evt.Data)
	default:
		s.logger.DebugContext(ctx, "ignoring webhook event", slog.String("type", evt.Type))
		return nil
	}
}

func (s *Synchronizer) applyUpsert(ctx context.Context, data json.RawMessage) error {
	var p userPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed user payload", err)
	}
	if p.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "user payload missing id", nil)
	}

	email := primaryEmail(&p)
	if email == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "user payload has no usable email address", nil)
	}

	u := &types.User{
		ID:          "usr_" + uuid.NewString(),
		ExternalID:  p.ID,
		Email:       email,
		Name:        strings.TrimSpace(p.FirstName + " " + p.LastName),
		ImageURL:    p.ImageURL,
		Plan:        types.PlanFree,
		NotifyEmail: true,
	}
	saved, err := s.users.UpsertByEmail(ctx, u)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user synchronized",
		slog.String("user_id", saved.ID),
		slog.String("external_id", p.ID),
	)
	return nil
}

func (s *Synchronizer) applyDelete(ctx context.Context, data json.RawMessage) error {
	var p deletedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed deletion payload", err)
	}
	if p.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "deletion payload missing id", nil)
	}

	if err := s.users.DeleteByExternalID(ctx, p.ID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("external_id", p.ID),
	)
	return nil
}

// primaryEmail picks the address flagged primary, falling back to the first
// listed address when the primary id does not resolve.
func primaryEmail(p *userPayload) string {
	for _, addr := range p.EmailAddresses {
		if addr.ID == p.PrimaryEmailID && addr.EmailAddress != "" {
			return addr.EmailAddress
		}
	}
	if len(p.EmailAddresses) > 0 {
		return p.EmailAddresses[0].EmailAddress
	}
	return ""
}
