package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomolink/internal/config"
	"pomolink/internal/types"
)

type stubAuthenticator struct {
	actor *types.Actor
	err   error
}

func (a *stubAuthenticator) Authenticate(context.Context, string) (*types.Actor, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.actor, nil
}

func newTestServer(t *testing.T, auth Authenticator) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := NewServer(&config.Config{}, auth, logger)
	require.NoError(t, err)
	return srv
}

func TestRequestIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))
	assert.Contains(t, seen, "req_")
}

func TestRequestIDMiddleware_PropagatesInboundID(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "req_upstream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "req_upstream", seen)
	assert.Equal(t, "req_upstream", w.Header().Get("X-Request-Id"))
}

func TestAuthMiddleware_MissingTokenIs401(t *testing.T) {
	srv := newTestServer(t, &stubAuthenticator{})
	h := srv.AuthMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a token")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "auth_token_missing", resp.Error.Code)
}

func TestAuthMiddleware_NonBearerSchemeIs401(t *testing.T) {
	srv := newTestServer(t, &stubAuthenticator{})
	h := srv.AuthMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InjectsActor(t *testing.T) {
	srv := newTestServer(t, &stubAuthenticator{actor: &types.Actor{
		UserID: "usr_1", Email: "u@example.com", Plan: types.PlanBasic,
	}})

	var got types.Actor
	var ok bool
	h := srv.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = types.GetActor(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	r.Header.Set("Authorization", "Bearer some.jwt.token")
	h.ServeHTTP(httptest.NewRecorder(), r)

	require.True(t, ok)
	assert.Equal(t, "usr_1", got.UserID)
	assert.Equal(t, types.PlanBasic, got.Plan)
}

func TestAuthMiddleware_InvalidTokenMapsError(t *testing.T) {
	srv := newTestServer(t, &stubAuthenticator{
		err: types.NewAppError(types.ErrCodeAuthTokenExpired, "token expired", nil),
	})
	h := srv.AuthMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run with a rejected token")
	}))

	r := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	r.Header.Set("Authorization", "Bearer expired.jwt")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "auth_token_expired", resp.Error.Code)
}

func TestRecoverer_PanicBecomes500(t *testing.T) {
	srv := newTestServer(t, nil)
	h := srv.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://app.pomolink.dev"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://app.pomolink.dev")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "https://app.pomolink.dev", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORSMiddleware_DisallowedOriginGetsNoHeaders(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://app.pomolink.dev"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_PreflightShortCircuits(t *testing.T) {
	handlerRan := false
	h := NewCORSMiddleware([]string{"*"})(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			handlerRan = true
		}))

	r := httptest.NewRequest(http.MethodOptions, "/v1/rooms", nil)
	r.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, handlerRan)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Empty(t, extractBearerToken(""))
	assert.Empty(t, extractBearerToken("Bearer"))
	assert.Empty(t, extractBearerToken("Token abc"))
}
