package gotrue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/provider/gotrue"
)

type fakeService struct {
	t *testing.T

	signInStatus int
	signInBody   map[string]any

	lastPath    string
	lastAPIKey  string
	lastAuth    string
	lastRequest map[string]any
}

func (f *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path + "?" + r.URL.RawQuery
		f.lastAPIKey = r.Header.Get("apikey")
		f.lastAuth = r.Header.Get("Authorization")

		f.lastRequest = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastRequest)

		status := f.signInStatus
		if status == 0 {
			status = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(f.signInBody)
	})
}

func newClient(t *testing.T, service *fakeService) (*gotrue.Client, func()) {
	t.Helper()

	server := httptest.NewServer(service.handler())
	client := gotrue.New(gotrue.Config{
		BaseURL: server.URL,
		APIKey:  "anon-key",
	})

	return client, server.Close
}

func TestSignInWithPassword(t *testing.T) {
	service := &fakeService{
		t: t,
		signInBody: map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    3600,
			"user": map[string]any{
				"id":                 "user-1",
				"email":              "test@example.com",
				"email_confirmed_at": "2025-01-01T00:00:00Z",
				"user_metadata": map[string]any{
					"name":    "Ada",
					"surname": "Lovelace",
				},
			},
		},
	}

	client, done := newClient(t, service)
	defer done()

	session, err := client.SignInWithPassword(context.Background(), "test@example.com", "pass word 123")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, "/auth/v1/token?grant_type=password", service.lastPath)
	assert.Equal(t, "anon-key", service.lastAPIKey)
	assert.Equal(t, "test@example.com", service.lastRequest["email"])

	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	assert.False(t, session.ExpiresAt.IsZero())

	require.NotNil(t, session.User)
	assert.Equal(t, "user-1", session.User.ID)
	assert.Equal(t, "Ada", session.User.FirstName)
	assert.Equal(t, "Lovelace", session.User.LastName)
	assert.True(t, session.User.EmailConfirmed)
}

func TestSignInErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     map[string]any
		classify func(error) bool
	}{
		{
			name:     "invalid credentials by error code",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error_code": "invalid_credentials", "msg": "Invalid login credentials"},
			classify: bridge.IsCredentialError,
		},
		{
			name:     "invalid credentials by message",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error": "invalid_grant", "error_description": "Invalid login credentials"},
			classify: bridge.IsCredentialError,
		},
		{
			name:     "unconfirmed email",
			status:   http.StatusBadRequest,
			body:     map[string]any{"error_code": "email_not_confirmed", "msg": "Email not confirmed"},
			classify: bridge.IsCredentialError,
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     map[string]any{"msg": "over_request_rate_limit"},
			classify: bridge.IsRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeService{t: t, signInStatus: tt.status, signInBody: tt.body}
			client, done := newClient(t, service)
			defer done()

			_, err := client.SignInWithPassword(context.Background(), "test@example.com", "bad")
			require.Error(t, err)
			assert.True(t, tt.classify(err))
		})
	}
}

func TestSignUpPendingConfirmation(t *testing.T) {
	service := &fakeService{
		t: t,
		signInBody: map[string]any{
			"id":    "user-9",
			"email": "new@example.com",
			"user_metadata": map[string]any{
				"name": "Ada",
			},
		},
	}

	client, done := newClient(t, service)
	defer done()

	result, err := client.SignUp(context.Background(), bridge.SignUpInput{
		Email:      "new@example.com",
		Password:   "pass word 123",
		FirstName:  "Ada",
		RedirectTo: "https://app.example.com/confirm",
	})
	require.NoError(t, err)

	assert.Contains(t, service.lastPath, "/auth/v1/signup")
	assert.Contains(t, service.lastPath, "redirect_to=")

	assert.Nil(t, result.Session)
	require.NotNil(t, result.User)
	assert.Equal(t, "user-9", result.User.ID)
	assert.False(t, result.User.EmailConfirmed)
}

func TestSignUpDuplicate(t *testing.T) {
	service := &fakeService{
		t:            t,
		signInStatus: http.StatusUnprocessableEntity,
		signInBody:   map[string]any{"msg": "User already registered"},
	}

	client, done := newClient(t, service)
	defer done()

	_, err := client.SignUp(context.Background(), bridge.SignUpInput{
		Email:    "dup@example.com",
		Password: "pass word 123",
	})
	require.Error(t, err)
	assert.True(t, bridge.IsDuplicateAccount(err))
}

func TestRefreshEmitsEvent(t *testing.T) {
	service := &fakeService{
		t: t,
		signInBody: map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"expires_in":    3600,
			"user":          map[string]any{"id": "user-1", "email": "test@example.com"},
		},
	}

	client, done := newClient(t, service)
	defer done()

	events, cancel := client.Subscribe()
	defer cancel()

	session, err := client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", session.AccessToken)
	assert.Equal(t, "refresh-1", service.lastRequest["refresh_token"])

	select {
	case ev := <-events:
		assert.Equal(t, bridge.EventTokenRefreshed, ev.Kind)
		require.NotNil(t, ev.Session)
		assert.Equal(t, "access-2", ev.Session.AccessToken)
	case <-time.After(time.Second):
		t.Fatal("expected a token refreshed event")
	}
}

func TestSignOutUsesBearerToken(t *testing.T) {
	service := &fakeService{t: t, signInStatus: http.StatusNoContent}

	client, done := newClient(t, service)
	defer done()

	events, cancel := client.Subscribe()
	defer cancel()

	require.NoError(t, client.SignOut(context.Background(), "access-1"))
	assert.Equal(t, "Bearer access-1", service.lastAuth)

	select {
	case ev := <-events:
		assert.Equal(t, bridge.EventSignedOut, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a signed out event")
	}
}

func TestCurrentSessionFallsBackToRefresh(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/auth/v1/user" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"msg": "JWT expired"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"expires_in":    3600,
			"user":          map[string]any{"id": "user-1", "email": "test@example.com"},
		})
	}))
	defer server.Close()

	client := gotrue.New(gotrue.Config{BaseURL: server.URL, APIKey: "anon-key"})

	session, err := client.CurrentSession(context.Background(), bridge.TokenPair{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, "access-2", session.AccessToken)
}

func TestCurrentSessionWithoutTokens(t *testing.T) {
	client := gotrue.New(gotrue.Config{BaseURL: "http://localhost:0", APIKey: "anon-key"})

	_, err := client.CurrentSession(context.Background(), bridge.TokenPair{})
	require.Error(t, err)
}
