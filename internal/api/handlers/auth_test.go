package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/auth"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/cache"
)

type stubAuthProvider struct {
	session    *models.AuthSession
	err        error
	recoverErr error
	signedOut  []string
}

func (p *stubAuthProvider) SignUp(_ context.Context, email, password, fullName string) (*models.AuthSession, error) {
	return p.session, p.err
}

func (p *stubAuthProvider) SignIn(_ context.Context, email, password string) (*models.AuthSession, error) {
	return p.session, p.err
}

func (p *stubAuthProvider) Refresh(_ context.Context, refreshToken string) (*models.AuthSession, error) {
	return p.session, p.err
}

func (p *stubAuthProvider) Recover(_ context.Context, email string) error { return p.recoverErr }

func (p *stubAuthProvider) GetUser(_ context.Context, accessToken string) (*models.AuthUser, error) {
	if p.session == nil {
		return nil, auth.ErrUnauthorized
	}
	return &p.session.User, nil
}

func (p *stubAuthProvider) SignOut(_ context.Context, accessToken string) error {
	p.signedOut = append(p.signedOut, accessToken)
	return nil
}

type recordingProfiles struct {
	upserted []*models.AuthUser
	err      error
}

func (s *recordingProfiles) UpsertProfile(_ context.Context, user *models.AuthUser) error {
	s.upserted = append(s.upserted, user)
	return s.err
}

func (s *recordingProfiles) GetProfileRole(_ context.Context, userID string) (string, error) {
	return "analyst", nil
}

func authTestRouter(provider *stubAuthProvider, profiles *recordingProfiles) *gin.Engine {
	h := NewAuthHandler(provider, cache.NewNoopCache(testLog()), profiles, testLog())
	r := gin.New()
	r.POST("/api/auth/signup", h.SignUp)
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/refresh", h.Refresh)
	r.POST("/api/auth/reset-password", h.ResetPassword)
	return r
}

func activeSession() *models.AuthSession {
	return &models.AuthSession{
		AccessToken:  "tok-access",
		RefreshToken: "tok-refresh",
		TokenType:    "bearer",
		ExpiresIn:    3600,
		User:         models.AuthUser{ID: "u-1", Email: "analyst@example.com"},
	}
}

func TestLoginUpsertsProfileWithDefaultRole(t *testing.T) {
	provider := &stubAuthProvider{session: activeSession()}
	profiles := &recordingProfiles{}

	w := perform(authTestRouter(provider, profiles), http.MethodPost, "/api/auth/login",
		`{"email":"analyst@example.com","password":"s3cretpass"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, profiles.upserted, 1)
	assert.Equal(t, "analyst", profiles.upserted[0].Role)

	var session models.AuthSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.Equal(t, "tok-access", session.AccessToken)
}

func TestLoginInvalidCredentials(t *testing.T) {
	provider := &stubAuthProvider{err: auth.ErrInvalidCredentials}

	w := perform(authTestRouter(provider, &recordingProfiles{}), http.MethodPost, "/api/auth/login",
		`{"email":"analyst@example.com","password":"wrongpass"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginEmailNotConfirmed(t *testing.T) {
	provider := &stubAuthProvider{err: auth.ErrEmailNotConfirmed}

	w := perform(authTestRouter(provider, &recordingProfiles{}), http.MethodPost, "/api/auth/login",
		`{"email":"analyst@example.com","password":"s3cretpass"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginValidation(t *testing.T) {
	w := perform(authTestRouter(&stubAuthProvider{}, &recordingProfiles{}), http.MethodPost, "/api/auth/login",
		`{"email":"not-an-email","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignUpPendingConfirmation(t *testing.T) {
	// GoTrue answers signups needing confirmation with a user but no tokens.
	provider := &stubAuthProvider{session: &models.AuthSession{
		User: models.AuthUser{ID: "u-2", Email: "new@example.com"},
	}}

	w := perform(authTestRouter(provider, &recordingProfiles{}), http.MethodPost, "/api/auth/signup",
		`{"email":"new@example.com","password":"s3cretpass"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "check your email")
}

func TestRefreshFailureMapsTo401(t *testing.T) {
	provider := &stubAuthProvider{err: auth.ErrUnauthorized}

	w := perform(authTestRouter(provider, &recordingProfiles{}), http.MethodPost, "/api/auth/refresh",
		`{"refresh_token":"stale"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResetPasswordNeverLeaksExistence(t *testing.T) {
	provider := &stubAuthProvider{recoverErr: nil}

	w := perform(authTestRouter(provider, &recordingProfiles{}), http.MethodPost, "/api/auth/reset-password",
		`{"email":"unknown@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "If an account exists")
}

func TestMeResolvesStoredRole(t *testing.T) {
	h := NewAuthHandler(&stubAuthProvider{}, cache.NewNoopCache(testLog()), &recordingProfiles{}, testLog())
	r := gin.New()
	r.GET("/api/auth/me", asUser("analyst@example.com"), h.Me)

	w := perform(r, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "analyst@example.com", body["email"])
	assert.Equal(t, "analyst", body["role"])
}

func TestMeWithoutUser(t *testing.T) {
	h := NewAuthHandler(&stubAuthProvider{}, cache.NewNoopCache(testLog()), &recordingProfiles{}, testLog())
	r := gin.New()
	r.GET("/api/auth/me", h.Me)

	w := perform(r, http.MethodGet, "/api/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResetPasswordRateLimited(t *testing.T) {
	provider := &stubAuthProvider{recoverErr: auth.ErrRateLimited}

	w := perform(authTestRouter(provider, &recordingProfiles{}), http.MethodPost, "/api/auth/reset-password",
		`{"email":"analyst@example.com"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
