package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomolink/internal/types"
)

func testPriceTable() *PriceTable {
	return NewPriceTable(map[types.PlanTier]string{
		types.PlanBasic: "price_basic_123",
		types.PlanPro:   "price_pro_456",
	})
}

func TestPriceTable_RoundTrip(t *testing.T) {
	table := testPriceTable()

	id, ok := table.PriceFor(types.PlanPro)
	require.True(t, ok)
	assert.Equal(t, "price_pro_456", id)
	assert.Equal(t, types.PlanPro, table.PlanFor(id))

	_, ok = table.PriceFor(types.PlanFree)
	assert.False(t, ok, "FREE has no purchasable price")
	assert.Equal(t, types.PlanFree, table.PlanFor("price_unknown"))
}

// --- CreateCheckoutSession ---

func TestStripeClient_CreateCheckoutSession(t *testing.T) {
	var gotForm url.Values
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	}))
	defer srv.Close()

	client := NewStripeClient(srv.Client(), StripeClientConfig{
		SecretKey: "sk_test_secret",
		BaseURL:   srv.URL,
		Prices:    testPriceTable(),
	})

	checkoutURL, err := client.CreateCheckoutSession(context.Background(),
		"usr_1", "u@example.com", types.PlanBasic,
		"https://app.example.com/billing/success",
		"https://app.example.com/billing/cancelled",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", checkoutURL)

	assert.Equal(t, "Bearer sk_test_secret", gotAuth)
	assert.Equal(t, "subscription", gotForm.Get("mode"))
	assert.Equal(t, "usr_1", gotForm.Get("client_reference_id"))
	assert.Equal(t, "u@example.com", gotForm.Get("customer_email"))
	assert.Equal(t, "price_basic_123", gotForm.Get("line_items[0][price]"))
	assert.Equal(t, "usr_1", gotForm.Get("metadata[user_id]"))
	assert.Equal(t, "BASIC", gotForm.Get("metadata[plan]"))
	assert.Equal(t, "usr_1", gotForm.Get("subscription_data[metadata][user_id]"))
}

func TestStripeClient_CreateCheckoutSession_FreeNotPurchasable(t *testing.T) {
	client := NewStripeClient(http.DefaultClient, StripeClientConfig{
		SecretKey: "sk_test", Prices: testPriceTable(),
	})

	_, err := client.CreateCheckoutSession(context.Background(),
		"usr_1", "u@example.com", types.PlanFree, "https://s", "https://c")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidEnum, appErr.Code)
}

func TestStripeClient_CreateCheckoutSession_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		fmt.Fprint(w, `{"error":{"message":"card declined"}}`)
	}))
	defer srv.Close()

	client := NewStripeClient(srv.Client(), StripeClientConfig{
		SecretKey: "sk_test", BaseURL: srv.URL, Prices: testPriceTable(),
	})

	_, err := client.CreateCheckoutSession(context.Background(),
		"usr_1", "u@example.com", types.PlanPro, "https://s", "https://c")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
}

// --- SubscriptionSync ---

func stripeEventPayload(t *testing.T, eventType string, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_test_1",
		"type": eventType,
		"data": map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func subscriptionObject(userID, status, priceID string) map[string]any {
	obj := map[string]any{
		"status":   status,
		"metadata": map[string]string{"user_id": userID},
	}
	if priceID != "" {
		obj["items"] = map[string]any{
			"data": []map[string]any{{"price": map[string]string{"id": priceID}}},
		}
	}
	return obj
}

func newSyncFixture() (*SubscriptionSync, *userStoreStub) {
	users := &userStoreStub{users: map[string]*types.User{
		"usr_1": {ID: "usr_1", Plan: types.PlanFree},
	}}
	return NewSubscriptionSync(users, testPriceTable(), nil), users
}

func TestSubscriptionSync_CheckoutCompleted_Upgrades(t *testing.T) {
	sync, users := newSyncFixture()
	payload := stripeEventPayload(t, EventCheckoutCompleted, map[string]any{
		"client_reference_id": "usr_1",
		"metadata":            map[string]string{"user_id": "usr_1", "plan": "BASIC"},
	})

	require.NoError(t, sync.Apply(context.Background(), payload))
	assert.Equal(t, types.PlanBasic, users.users["usr_1"].Plan)
}

func TestSubscriptionSync_CheckoutCompleted_MissingUserRef(t *testing.T) {
	sync, _ := newSyncFixture()
	payload := stripeEventPayload(t, EventCheckoutCompleted, map[string]any{
		"metadata": map[string]string{"plan": "BASIC"},
	})

	err := sync.Apply(context.Background(), payload)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestSubscriptionSync_CheckoutCompleted_BadPlanMetadata(t *testing.T) {
	sync, users := newSyncFixture()
	payload := stripeEventPayload(t, EventCheckoutCompleted, map[string]any{
		"client_reference_id": "usr_1",
		"metadata":            map[string]string{"plan": "PLATINUM"},
	})

	err := sync.Apply(context.Background(), payload)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidEnum, appErr.Code)
	assert.Equal(t, types.PlanFree, users.users["usr_1"].Plan)
}

func TestSubscriptionSync_UnknownEventIsNoOp(t *testing.T) {
	sync, users := newSyncFixture()
	payload := stripeEventPayload(t, "invoice.paid", map[string]any{})

	require.NoError(t, sync.Apply(context.Background(), payload))
	assert.Equal(t, types.PlanFree, users.users["usr_1"].Plan)
}

func TestSubscriptionSync_SubscriptionUpdated_FollowsPrice(t *testing.T) {
	sync, users := newSyncFixture()
	payload := stripeEventPayload(t, EventSubUpdated,
		subscriptionObject("usr_1", "active", "price_pro_456"))

	require.NoError(t, sync.Apply(context.Background(), payload))
	assert.Equal(t, types.PlanPro, users.users["usr_1"].Plan)
}

func TestSubscriptionSync_SubscriptionUpdated_CanceledRevertsToFree(t *testing.T) {
	sync, users := newSyncFixture()
	users.users["usr_1"].Plan = types.PlanPro
	payload := stripeEventPayload(t, EventSubUpdated,
		subscriptionObject("usr_1", "canceled", "price_pro_456"))

	require.NoError(t, sync.Apply(context.Background(), payload))
	assert.Equal(t, types.PlanFree, users.users["usr_1"].Plan)
}

func TestSubscriptionSync_SubscriptionDeleted_RevertsToFree(t *testing.T) {
	sync, users := newSyncFixture()
	users.users["usr_1"].Plan = types.PlanBasic
	payload := stripeEventPayload(t, EventSubDeleted,
		subscriptionObject("usr_1", "canceled", ""))

	require.NoError(t, sync.Apply(context.Background(), payload))
	assert.Equal(t, types.PlanFree, users.users["usr_1"].Plan)
}

func TestSubscriptionSync_Apply_MalformedPayload(t *testing.T) {
	sync, _ := newSyncFixture()

	err := sync.Apply(context.Background(), []byte("{not json"))
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
}

// Retry behaviour of the outbound client is covered in package external; here
// we only confirm a transient 500 does not surface before retries run out.
func TestStripeClient_RetriesTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cs_1","url":"https://checkout.stripe.com/c/cs_1"}`)
	}))
	defer srv.Close()

	client := NewStripeClient(&http.Client{Timeout: 5 * time.Second}, StripeClientConfig{
		SecretKey: "sk_test", BaseURL: srv.URL, Prices: testPriceTable(),
	})

	checkoutURL, err := client.CreateCheckoutSession(context.Background(),
		"usr_1", "u@example.com", types.PlanBasic, "https://s", "https://c")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_1", checkoutURL)
	assert.Equal(t, 2, attempts)
}
