package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"pomolink/internal/external"
	"pomolink/internal/types"
)

// DirectoryClient reads user records straight from the identity provider's
// REST API. The webhook sync is the normal path; the directory is the
// fallback for backfilling accounts created before the webhook endpoint was
// registered and for re-syncing a suspect record on demand.
type DirectoryClient struct {
	client  *external.OutboundClient
	baseURL string
	apiKey  string
}

// NewDirectoryClient constructs a DirectoryClient over the shared resilient
// outbound client.
func NewDirectoryClient(httpClient *http.Client, baseURL, apiKey, userAgent string) *DirectoryClient {
	return &DirectoryClient{
		client: external.NewOutboundClient(
			httpClient,
			"identity-directory",
			types.ErrCodeUpstreamIdentity,
			external.DefaultRetryPolicy(),
			userAgent,
		),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// FetchUser retrieves one provider user record by external id.
func (c *DirectoryClient) FetchUser(ctx context.Context, externalID string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/users/%s", c.baseURL, externalID), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build directory request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found in directory", nil)
	case resp.StatusCode != http.StatusOK:
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity,
			fmt.Sprintf("directory returned %d", resp.StatusCode), nil)
	}

	var data json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "malformed directory response", err)
	}

	// Wrap the record as an update event so Resync reuses the webhook path.
	return &WebhookEvent{Type: EventUserUpdated, Data: data}, nil
}

// Resync pulls a user from the directory and applies it through the same
// upsert the webhook path uses.
func (c *DirectoryClient) Resync(ctx context.Context, sync *Synchronizer, externalID string) error {
	evt, err := c.FetchUser(ctx, externalID)
	if err != nil {
		return err
	}
	return sync.Apply(ctx, evt)
}
