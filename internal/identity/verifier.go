// Package identity synchronizes identity-provider accounts into the local
// user table and authenticates provider-issued JWTs.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pomolink/internal/types"
)

// Webhook signature headers sent by the identity provider.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

// signatureTolerance bounds how stale a webhook timestamp may be, in either
// direction, before the delivery is rejected as a possible replay.
const signatureTolerance = 5 * time.Minute

// secretPrefix is stripped from the configured signing secret before base64
// decoding.
const secretPrefix = "whsec_"

// WebhookVerifier checks provider webhook deliveries against the shared
// signing secret. The signed content is "{id}.{timestamp}.{payload}" and the
// signature header carries one or more space-separated "v1,<base64 mac>"
// entries; any one matching entry verifies the delivery.
type WebhookVerifier struct {
	key   []byte
	clock types.Clock
}

// NewWebhookVerifier builds a verifier from the configured signing secret.
// A nil clock defaults to the real system clock.
func NewWebhookVerifier(secret string, clock types.Clock) (*WebhookVerifier, error) {
	if clock == nil {
		clock = types.RealClock{}
	}
	raw := strings.TrimPrefix(secret, secretPrefix)
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("webhook secret is empty")
	}
	return &WebhookVerifier{key: key, clock: clock}, nil
}

// Verify checks the delivery headers and payload. All failures come back as
// validation_webhook_rejected so the handler can answer 400 uniformly without
// leaking which check failed.
func (v *WebhookVerifier) Verify(header http.Header, payload []byte) error {
	id := header.Get(HeaderWebhookID)
	ts := header.Get(HeaderWebhookTimestamp)
	sigHeader := header.Get(HeaderWebhookSignature)
	if id == "" || ts == "" || sigHeader == "" {
		return types.NewAppError(types.ErrCodeValidationWebhook, "missing webhook signature headers", nil)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return types.NewAppError(types.ErrCodeValidationWebhook, "invalid webhook timestamp", err)
	}
	sent := time.Unix(unix, 0)
	now := v.clock.Now()
	if sent.Before(now.Add(-signatureTolerance)) || sent.After(now.Add(signatureTolerance)) {
		return types.NewAppError(types.ErrCodeValidationWebhook, "webhook timestamp outside tolerance", nil)
	}

	mac := hmac.New(sha256.New, v.key)
	fmt.Fprintf(mac, "%s.%s.", id, ts)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, entry := range strings.Fields(sigHeader) {
		version, encoded, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return types.NewAppError(types.ErrCodeValidationWebhook, "webhook signature mismatch", nil)
}
