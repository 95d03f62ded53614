package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.AuthConfig{URL: srv.URL, APIKey: "test-api-key", Timeout: 2000}, logger.New("error"))
}

func TestSignInReturnsSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "test-api-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "analyst@example.com", body["email"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-123",
			"refresh_token": "rt-456",
			"token_type":    "bearer",
			"expires_in":    3600,
			"user": map[string]interface{}{
				"id":            "user-1",
				"email":         "analyst@example.com",
				"user_metadata": map[string]string{"full_name": "A. Nalyst"},
			},
		})
	})

	session, err := c.SignIn(context.Background(), "analyst@example.com", "hunter22")

	require.NoError(t, err)
	assert.Equal(t, "at-123", session.AccessToken)
	assert.Equal(t, "rt-456", session.RefreshToken)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.Equal(t, "user-1", session.User.ID)
	assert.Equal(t, "A. Nalyst", session.User.FullName)
}

func TestSignInInvalidCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error_description": "Invalid login credentials"})
	})

	_, err := c.SignIn(context.Background(), "a@b.com", "wrong")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignInEmailNotConfirmed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"msg": "Email not confirmed"})
	})

	_, err := c.SignIn(context.Background(), "a@b.com", "pw")

	assert.ErrorIs(t, err, ErrEmailNotConfirmed)
}

func TestSignInRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"msg": "Too many requests"})
	})

	_, err := c.SignIn(context.Background(), "a@b.com", "pw")

	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSignUpConfirmationPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "user-9",
			"email": "new@example.com",
		})
	})

	session, err := c.SignUp(context.Background(), "new@example.com", "password123", "")

	require.NoError(t, err)
	assert.Empty(t, session.AccessToken)
	assert.Equal(t, "user-9", session.User.ID)
	assert.Equal(t, "new@example.com", session.User.Email)
}

func TestRefreshRotatesTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "at-new",
			"refresh_token": "rt-new",
			"expires_in":    3600,
		})
	})

	session, err := c.Refresh(context.Background(), "rt-old")

	require.NoError(t, err)
	assert.Equal(t, "at-new", session.AccessToken)
	assert.Equal(t, "rt-new", session.RefreshToken)
}

func TestGetUserSendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "user-1",
			"email": "analyst@example.com",
		})
	})

	user, err := c.GetUser(context.Background(), "user-token")

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestGetUserExpiredToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"msg": "JWT expired"})
	})

	_, err := c.GetUser(context.Background(), "stale")

	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRecoverSwallowsProviderErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"msg": "User not found"})
	})

	// unknown addresses must look identical to known ones
	assert.NoError(t, c.Recover(context.Background(), "nobody@example.com"))
}

func TestRecoverSurfacesRateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	assert.ErrorIs(t, c.Recover(context.Background(), "a@b.com"), ErrRateLimited)
}

func TestUnconfiguredClient(t *testing.T) {
	c := NewClient(config.AuthConfig{}, logger.New("error"))

	_, err := c.SignIn(context.Background(), "a@b.com", "pw")

	assert.ErrorIs(t, err, ErrNotConfigured)
}
