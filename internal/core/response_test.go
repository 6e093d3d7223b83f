package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomolink/internal/types"
)

func newJSONRequest(body string) (*httptest.ResponseRecorder, *http.Request) {
	r := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	r = r.WithContext(types.WithRequestID(r.Context(), "req_test"))
	return httptest.NewRecorder(), r
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestError_AppErrorEnvelope(t *testing.T) {
	w, r := newJSONRequest("")
	Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeNotFoundRoom,
		"room not found", nil, map[string]any{"room_id": "room_1"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeErrorBody(t, w)
	assert.Equal(t, "not_found_room", resp.Error.Code)
	assert.Equal(t, "room not found", resp.Error.Message)
	assert.Equal(t, "room_1", resp.Error.Details["room_id"])
	assert.Equal(t, "req_test", resp.Error.RequestID)
}

func TestError_LimitDenialBypassesEnvelope(t *testing.T) {
	w, r := newJSONRequest("")
	limitErr := types.NewLimitError(types.ErrCodeLimitParticipants,
		"PARTICIPANT_LIMIT_EXCEEDED", "participant limit reached",
		types.Decision{
			CurrentCount: 3,
			MaxCount:     3,
			PlanType:     types.PlanFree,
			LimitScope:   types.LimitScopeRoom,
		})
	Error(w, r, limitErr)

	assert.Equal(t, http.StatusForbidden, w.Code)

	// Clients parse this body directly, so the keys are part of the contract.
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "participant limit reached", body["error"])
	assert.Equal(t, "PARTICIPANT_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, float64(3), body["currentCount"])
	assert.Equal(t, float64(3), body["maxCount"])
	assert.Equal(t, "FREE", body["planType"])
	assert.Equal(t, true, body["needsUpgrade"])
	assert.Equal(t, "ROOM", body["limitType"])
	assert.NotContains(t, body, "request_id")
}

func TestError_UploadDenialIs429(t *testing.T) {
	w, r := newJSONRequest("")
	limitErr := types.NewLimitError(types.ErrCodeLimitUploads,
		"UPLOAD_LIMIT_EXCEEDED", "daily upload limit reached",
		types.Decision{CurrentCount: 5, MaxCount: 5, PlanType: types.PlanFree, LimitScope: types.LimitScopeUser})
	Error(w, r, limitErr)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestError_ProPlanDenialNeedsNoUpgrade(t *testing.T) {
	w, r := newJSONRequest("")
	Error(w, r, types.NewLimitError(types.ErrCodeLimitRooms,
		"ROOM_LIMIT_EXCEEDED", "room limit reached",
		types.Decision{CurrentCount: 20, MaxCount: 20, PlanType: types.PlanPro}))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "needsUpgrade", "PRO is the top tier; there is nothing to upgrade to")
}

func TestError_UnknownErrorHidesDetail(t *testing.T) {
	w, r := newJSONRequest("")
	Error(w, r, fmt.Errorf("pq: connection refused to 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeErrorBody(t, w)
	assert.Equal(t, "internal_unexpected_error", resp.Error.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestError_WrappedAppErrorStillMaps(t *testing.T) {
	w, r := newJSONRequest("")
	inner := types.NewAppError(types.ErrCodePermissionNotCreator, "only the creator may delete the room", nil)
	Error(w, r, fmt.Errorf("delete room: %w", inner))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission_not_room_creator", decodeErrorBody(t, w).Error.Code)
}

func TestDecodeJSON_Valid(t *testing.T) {
	w, r := newJSONRequest(`{"name":"Focus Room"}`)
	var dst struct {
		Name string `json:"name"`
	}
	require.NoError(t, DecodeJSON(w, r, &dst))
	assert.Equal(t, "Focus Room", dst.Name)
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	w, r := newJSONRequest(`{"name":"x","surprise":true}`)
	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
	assert.Contains(t, appErr.Message, "surprise")
}

func TestDecodeJSON_RejectsEmptyBody(t *testing.T) {
	w, r := newJSONRequest("")
	var dst struct{}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestDecodeJSON_RejectsTrailingContent(t *testing.T) {
	w, r := newJSONRequest(`{"name":"a"}{"name":"b"}`)
	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single JSON object")
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	big := `{"name":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	w, r := newJSONRequest(big)
	var dst struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1MB")
}

func TestDecodeJSON_TypeMismatchNamesField(t *testing.T) {
	w, r := newJSONRequest(`{"count":"three"}`)
	var dst struct {
		Count int `json:"count"`
	}
	err := DecodeJSON(w, r, &dst)
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, "count", appErr.Details["field"])
}

func TestJSON_WritesEnvelope(t *testing.T) {
	w, r := newJSONRequest("")
	JSON(w, r, http.StatusCreated, APIResponse{Data: map[string]string{"id": "room_1"}})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte(`"room_1"`)))
}
