package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/arc-sentinel/sentinel-core/internal/auth"
	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/cache"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// Gin context keys set by the auth middleware.
const (
	ContextUserKey  = "auth_user"
	ContextTokenKey = "auth_token"
)

// Auth validates bearer tokens: the session cache is consulted first, then
// the token is pre-parsed locally to reject expired JWTs cheaply, and only
// then does the identity provider get a round trip. Validated identities are
// cached for the configured session TTL.
func Auth(provider auth.Provider, sessions cache.Cache, cfg config.AuthConfig, log logger.Logger) gin.HandlerFunc {
	sessionTTL := time.Duration(cfg.SessionTTL) * time.Second
	if sessionTTL <= 0 {
		sessionTTL = 15 * time.Minute
	}

	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			monitoring.RecordAuthAttempt("missing_token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()

		if user, err := sessions.GetSession(ctx, token); err == nil {
			c.Set(ContextUserKey, user)
			c.Set(ContextTokenKey, token)
			c.Next()
			return
		}

		if err := precheckJWT(token); err != nil {
			monitoring.RecordAuthAttempt("rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authentication token"})
			c.Abort()
			return
		}

		user, err := provider.GetUser(ctx, token)
		if err != nil {
			monitoring.RecordAuthAttempt("rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		if err := sessions.SetSession(ctx, token, user, sessionTTL); err != nil {
			log.Warn("session cache write failed", "error", err)
		}
		monitoring.RecordAuthAttempt("accepted")

		c.Set(ContextUserKey, user)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present but never
// rejects the request. Used for the WebSocket endpoints so dashboards can
// subscribe before login.
func OptionalAuth(provider auth.Provider, sessions cache.Cache, cfg config.AuthConfig, log logger.Logger) gin.HandlerFunc {
	required := Auth(provider, sessions, cfg, log)
	return func(c *gin.Context) {
		if extractToken(c) == "" {
			c.Next()
			return
		}
		required(c)
	}
}

// CurrentUser returns the identity attached by Auth, if any.
func CurrentUser(c *gin.Context) (*models.AuthUser, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.AuthUser)
	return user, ok
}

// extractToken pulls the bearer token from the Authorization header, with a
// query-parameter fallback for WebSocket upgrades.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

// precheckJWT parses the token without signature verification to reject
// malformed or expired tokens before the provider round trip. The provider
// remains the authority on validity.
func precheckJWT(token string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err == nil && exp != nil && exp.Before(time.Now()) {
		return fmt.Errorf("token expired at %s", exp.Time.Format(time.RFC3339))
	}
	return nil
}
