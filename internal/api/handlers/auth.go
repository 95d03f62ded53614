package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/api/middleware"
	"github.com/arc-sentinel/sentinel-core/internal/auth"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/cache"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// ProfileStore persists the local role-bearing profile rows.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, user *models.AuthUser) error
	GetProfileRole(ctx context.Context, userID string) (string, error)
}

type AuthHandler struct {
	provider auth.Provider
	sessions cache.Cache
	profiles ProfileStore
	logger   logger.Logger
}

func NewAuthHandler(provider auth.Provider, sessions cache.Cache, profiles ProfileStore, log logger.Logger) *AuthHandler {
	return &AuthHandler{provider: provider, sessions: sessions, profiles: profiles, logger: log}
}

// POST /api/auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.provider.SignUp(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	message := "Signed up successfully"
	if session.AccessToken == "" {
		message = "Please check your email for verification link"
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    session.User,
		"session": session,
		"message": message,
	})
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	// role defaults live in the local profile row
	if session.User.Role == "" {
		session.User.Role = "analyst"
	}
	if err := h.profiles.UpsertProfile(c.Request.Context(), &session.User); err != nil {
		h.logger.Warn("profile upsert failed", "email", session.User.Email, "error", err)
	}

	c.JSON(http.StatusOK, session)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := c.GetString(middleware.ContextTokenKey)
	if token != "" {
		if err := h.sessions.InvalidateSession(c.Request.Context(), token); err != nil {
			h.logger.Warn("session invalidation failed", "error", err)
		}
		if err := h.provider.SignOut(c.Request.Context(), token); err != nil {
			h.logger.Debug("provider signout failed", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.provider.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// POST /api/auth/reset-password
//
// Always answers success so account existence cannot be probed; only rate
// limiting surfaces.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provider.Recover(c.Request.Context(), req.Email); errors.Is(err, auth.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "If an account exists with this email, a reset link has been sent",
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	role := user.Role
	if role == "" {
		if stored, err := h.profiles.GetProfileRole(c.Request.Context(), user.ID); err == nil && stored != "" {
			role = stored
		} else {
			role = "analyst"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      role,
	})
}

func (h *AuthHandler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, wait a moment and try again"})
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		c.JSON(http.StatusForbidden, gin.H{"error": "please verify your email before signing in"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, auth.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity provider not configured"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
